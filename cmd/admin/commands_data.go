package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ClareAI/astra-receptionist-service/internal/adapters/retrieval"
	"github.com/ClareAI/astra-receptionist-service/internal/config"
	"github.com/ClareAI/astra-receptionist-service/internal/core/engine"
	"github.com/ClareAI/astra-receptionist-service/internal/domain"
	"github.com/ClareAI/astra-receptionist-service/internal/repository"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultBackfillBatch = 50

// =============================================================================
// Contacts Commands
// =============================================================================

// contactWriter is the storage side of contact ingestion
type contactWriter interface {
	Upsert(ctx context.Context, contact *domain.ContactRecord) error
	DeleteDuplicates(ctx context.Context) (int64, error)
}

func buildContactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage the contact directory used for caller lookup",
	}
	cmd.AddCommand(buildContactsImportCmd(), buildContactsDedupeCmd())
	return cmd
}

func buildContactsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import contacts from a JSON or YAML list",
		Long: `Import contacts from a JSON or YAML list of objects with name, email,
phone, company and notes. Contacts with an email replace the existing
contact with that email.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contacts, err := readRecords[domain.ContactRecord](args[0])
			if err != nil {
				return err
			}
			repos, err := repository.NewRepositoryManager()
			if err != nil {
				return err
			}
			defer repos.Close()

			// all or nothing, so a bad row never leaves a half-imported file
			var imported, skipped int
			err = repos.WithTx(cmd.Context(), func(ctx context.Context, tx repository.RepositoryManager) error {
				var importErr error
				imported, skipped, importErr = importContacts(ctx, tx.Contacts(), contacts)
				return importErr
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d contacts (%d skipped)\n", imported, skipped)
			return nil
		},
	}
}

func buildContactsDedupeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe",
		Short: "Remove duplicate contacts, keeping the most recently updated",
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := repository.NewRepositoryManager()
			if err != nil {
				return err
			}
			defer repos.Close()

			removed, err := repos.Contacts().DeleteDuplicates(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d duplicate contacts\n", removed)
			return nil
		},
	}
}

// importContacts upserts every named contact and reports how many were
// written and how many were skipped for having no name
func importContacts(ctx context.Context, w contactWriter, contacts []domain.ContactRecord) (int, int, error) {
	imported, skipped := 0, 0
	for i := range contacts {
		c := contacts[i]
		c.Name = strings.TrimSpace(c.Name)
		c.Email = strings.ToLower(strings.TrimSpace(c.Email))
		if c.Name == "" {
			skipped++
			continue
		}
		if err := w.Upsert(ctx, &c); err != nil {
			return imported, skipped, fmt.Errorf("failed to import contact %q: %w", c.Name, err)
		}
		imported++
	}
	return imported, skipped, nil
}

// =============================================================================
// Emails Commands
// =============================================================================

func buildEmailsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emails",
		Short: "Manage the email corpus used for topic search",
	}
	cmd.AddCommand(buildEmailsImportCmd(), buildEmailsBackfillCmd())
	return cmd
}

func buildEmailsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Embed and import emails from a JSON or YAML list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := readRecords[retrieval.EmailDocument](args[0])
			if err != nil {
				return err
			}
			index, closeIndex, err := openEmailIndex(cmd.Context(), loadConfig())
			if err != nil {
				return err
			}
			defer closeIndex()

			inserted, err := index.Insert(cmd.Context(), docs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d emails\n", inserted)
			return nil
		},
	}
}

func buildEmailsBackfillCmd() *cobra.Command {
	var batch, maxBatches int
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed stored emails that have no vector yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			index, closeIndex, err := openEmailIndex(cmd.Context(), loadConfig())
			if err != nil {
				return err
			}
			defer closeIndex()

			total, err := backfill(cmd.Context(), index, batch, maxBatches)
			fmt.Fprintf(cmd.OutOrStdout(), "Embedded %d emails\n", total)
			return err
		},
	}
	cmd.Flags().IntVar(&batch, "batch", defaultBackfillBatch, "Emails embedded per batch")
	cmd.Flags().IntVar(&maxBatches, "max-batches", 10, "Stop after this many batches")
	return cmd
}

type backfiller interface {
	BackfillEmbeddings(ctx context.Context, batchSize int) (int, error)
}

// backfill runs batches until one comes back short or maxBatches is reached
func backfill(ctx context.Context, b backfiller, batch, maxBatches int) (int, error) {
	if batch <= 0 {
		batch = defaultBackfillBatch
	}
	total := 0
	for i := 0; i < maxBatches; i++ {
		n, err := b.BackfillEmbeddings(ctx, batch)
		total += n
		if err != nil {
			return total, err
		}
		if n < batch {
			break
		}
	}
	return total, nil
}

func openEmailIndex(ctx context.Context, cfg *config.ReceptionistConfig) (*retrieval.EmailIndex, func(), error) {
	if cfg.MongoURI == "" {
		return nil, nil, fmt.Errorf("MONGODB_URI is not set")
	}
	llm, err := engine.NewLLM(engine.LLMConfig{
		APIKey:         cfg.LLMAPIKey,
		BaseURL:        cfg.LLMBaseURL,
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("embeddings need an LLM endpoint: %w", err)
	}
	client, err := retrieval.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, nil, err
	}
	coll := client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)
	index := retrieval.NewEmailIndex(retrieval.WrapCollection(coll), llm, cfg.MongoVectorIndex)
	return index, func() { _ = client.Disconnect(context.Background()) }, nil
}

// readRecords decodes a JSON or YAML list, chosen by file extension
func readRecords[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var out []T
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &out)
	default:
		err = json.Unmarshal(data, &out)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return out, nil
}
