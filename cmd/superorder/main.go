package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aaron-Tawil/super-order-automation/internal"
	"github.com/Aaron-Tawil/super-order-automation/internal/config"
	"github.com/Aaron-Tawil/super-order-automation/internal/connectors"
	gmailconnector "github.com/Aaron-Tawil/super-order-automation/internal/connectors/gmail"
	imapconnector "github.com/Aaron-Tawil/super-order-automation/internal/connectors/imap"
	"github.com/Aaron-Tawil/super-order-automation/internal/detect"
	"github.com/Aaron-Tawil/super-order-automation/internal/directory"
	"github.com/Aaron-Tawil/super-order-automation/internal/export"
	"github.com/Aaron-Tawil/super-order-automation/internal/idempotency"
	"github.com/Aaron-Tawil/super-order-automation/internal/oracle"
	"github.com/Aaron-Tawil/super-order-automation/internal/pipeline"
	"github.com/Aaron-Tawil/super-order-automation/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "suppliers:add":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		code := fs.String("code", "", "supplier code")
		name := fs.String("name", "", "supplier name")
		globalID := fs.String("globalId", "", "registered business id")
		email := fs.String("email", "", "primary contact address")
		phone := fs.String("phone", "", "phone number")
		instructions := fs.String("instructions", "", "extraction instructions")
		_ = fs.Parse(os.Args[2:])

		_, _, svc := buildDirectory(db, cfg, logger)
		must(svc.AddSupplier(internal.SupplierRecord{
			Code:                *code,
			Name:                *name,
			GlobalID:            *globalID,
			Email:               *email,
			Phone:               *phone,
			SpecialInstructions: *instructions,
		}))
		fmt.Printf("supplier added code=%s\n", *code)
	case "suppliers:list":
		suppliers, err := db.ListSuppliers()
		must(err)
		for _, s := range suppliers {
			fmt.Printf("%s\t%s\tglobal_id=%s\temail=%s\tphone=%s\n", s.Code, s.Name, s.GlobalID, s.Email, s.Phone)
		}
		fmt.Printf("total=%d\n", len(suppliers))
	case "suppliers:set-instructions":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		code := fs.String("code", "", "supplier code")
		text := fs.String("text", "", "extraction instructions")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*code) == "" {
			must(fmt.Errorf("--code is required"))
		}
		_, _, svc := buildDirectory(db, cfg, logger)
		must(svc.SetInstructions(*code, *text))
		fmt.Printf("instructions updated code=%s\n", *code)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "gmail", "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := makeConnector(cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn)
		result, err := fetch.FetchAndStore(*label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d\n", *provider, result.Fetched, result.Stored)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "gmail", "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])

		processor := buildProcessor(db, cfg, logger)

		var rows []internal.MessageRow
		if strings.TrimSpace(*messageID) != "" {
			row, err := db.GetMessageByProviderMessageID(*provider, *messageID)
			must(err)
			if row == nil {
				must(fmt.Errorf("no stored message for messageId=%s", *messageID))
			}
			rows = []internal.MessageRow{*row}
		} else {
			rows, err = db.ListMessagesByStatus("fetched", *batch)
			must(err)
		}

		processed, skipped := 0, 0
		for _, row := range rows {
			outcome, err := processStoredMessage(processor, cfg, row)
			if err != nil {
				logger.Error("message processing failed", "message_id", row.MessageID, "error", err)
				must(db.UpdateMessageStatus(row.ID, "failed"))
				continue
			}
			if outcome.Skipped {
				skipped++
				must(db.UpdateMessageStatus(row.ID, "skipped"))
				continue
			}
			processed++
			must(db.UpdateMessageStatus(row.ID, "processed"))
		}
		fmt.Printf("mail process done processed=%d skipped=%d\n", processed, skipped)
	case "process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "document path (pdf, xlsx, csv, html, txt)")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*file) == "" {
			must(fmt.Errorf("--file is required"))
		}

		content, err := os.ReadFile(*file)
		must(err)
		sum := sha256.Sum256(content)
		doc := internal.Document{
			Name:      filepath.Base(*file),
			MediaType: mediaTypeFor(*file),
			Content:   content,
		}

		processor := buildProcessor(db, cfg, logger)
		result, err := processor.ProcessMessage(context.Background(), "file:"+hex.EncodeToString(sum[:]), internal.MessageMeta{}, []internal.Document{doc})
		must(err)
		if result.Skipped {
			fmt.Println("document already processed")
			return
		}

		outputPath := *out
		if outputPath == "" {
			outputPath = filepath.Join(cfg.OutputDir, strings.TrimSuffix(doc.Name, filepath.Ext(doc.Name))+".xlsx")
		}
		must(export.OrdersToXLSX(result.Orders, outputPath))
		fmt.Printf("process done supplier=%s orders=%d cost=%.4f output=%s\n",
			result.Detection.SupplierCode, len(result.Orders), result.Usage.EstimatedCost, outputPath)
	default:
		usage()
		os.Exit(1)
	}
}

func processStoredMessage(processor *pipeline.Processor, cfg config.Config, row internal.MessageRow) (pipeline.Result, error) {
	raw, err := os.ReadFile(row.RawRef)
	if err != nil {
		return pipeline.Result{}, err
	}
	meta, docs, err := connectors.OpenMessage(raw)
	if err != nil {
		return pipeline.Result{}, err
	}

	result, err := processor.ProcessMessage(context.Background(), row.MessageID, meta, docs)
	if err != nil || result.Skipped {
		return result, err
	}

	if len(result.Orders) > 0 {
		outputPath := filepath.Join(cfg.OutputDir, row.Hash+".xlsx")
		if err := export.OrdersToXLSX(result.Orders, outputPath); err != nil {
			return result, err
		}
	}
	return result, nil
}

func buildDirectory(db *storage.DB, cfg config.Config, logger *slog.Logger) (*directory.Cache, *directory.Matcher, *directory.Service) {
	cache := directory.NewCache(db, logger)
	matcher := directory.NewMatcher(cache, cfg.ExcludedDomains, cfg.FuzzyThreshold)
	svc := directory.NewService(db, cache, logger)
	return cache, matcher, svc
}

func buildProcessor(db *storage.DB, cfg config.Config, logger *slog.Logger) *pipeline.Processor {
	must(cfg.Require("ORACLE_API_KEY", cfg.OracleAPIKey))
	cache, matcher, svc := buildDirectory(db, cfg, logger)
	detector := detect.NewDetector(matcher, cfg.BlacklistIDs, cfg.BlacklistEmails, logger)
	client := oracle.NewClient(cfg)
	orchestrator := pipeline.NewOrchestrator(client, cfg.DefaultVatRate, cfg.MoneyTolerance, cfg.QtyTolerance, cfg.MaxRetries, logger)
	guard := idempotency.NewGuard(db, time.Duration(cfg.LockTTLMinutes)*time.Minute)
	return pipeline.NewProcessor(guard, detector, matcher, svc, cache, client, orchestrator, db, logger)
}

func makeConnector(cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func mediaTypeFor(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

func usage() {
	fmt.Println("usage: superorder <command>")
	fmt.Println("commands:")
	fmt.Println("  suppliers:add --code=S001 --name=... [--globalId=...] [--email=...] [--phone=...] [--instructions=...]")
	fmt.Println("  suppliers:list")
	fmt.Println("  suppliers:set-instructions --code=S001 --text=...")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...] [--batch=20]")
	fmt.Println("  process --file=invoice.pdf [--out=./out/result.xlsx]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
