package directory

import (
	"encoding/csv"
	"strings"
)

// CSVSnapshot renders the directory as a compact CSV block, the form the
// oracle detection prompt embeds. Rendering reads the cached index, so
// repeated calls between writes cost one map walk.
func (c *Cache) CSVSnapshot() (string, error) {
	idx, err := c.Snapshot()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	_ = w.Write([]string{"code", "name", "global_id", "email", "phone"})
	for _, s := range idx.Suppliers {
		_ = w.Write([]string{s.Code, s.Name, s.GlobalID, s.Email, s.Phone})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}
