package cli

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"servicehub/internal/app"
	"servicehub/pkg/models"
	"servicehub/pkg/utils"
)

func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Seed the local database from files",
	}
	cmd.AddCommand(newImportServicesCommand(rootOpts))
	cmd.AddCommand(newImportCatalogCommand(rootOpts))
	return cmd
}

func (o *RootOptions) openLocal(logOut io.Writer) (*app.App, error) {
	if o.GRPCAddr != "" {
		return nil, fmt.Errorf("import works on the local database only")
	}
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	return app.Open(cfg.DBPath, utils.NewLogger(logOut, cfg.Log), nil)
}

type importStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Synced  int `json:"synced_catalogs"`
}

func newImportServicesCommand(rootOpts *RootOptions) *cobra.Command {
	var sync bool

	cmd := &cobra.Command{
		Use:   "services <file.csv>",
		Short: "Upsert canonical services from CSV",
		Long: `Columns: canonical_ref, legacy_id, language, display_name, icon_url,
currency, prices, active. prices is a ';'-separated list of
<months>x<seats>=<price>, e.g. "1x1=9.99;12x1=7.99".

Rows match an existing service by canonical_ref, else by
(language, legacy_id). With --sync every imported service is pushed into
the catalogs.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.openLocal(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			stats, err := importServices(cmd.Context(), a, f, sync)
			if err != nil {
				return err
			}
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(stats, func(w io.Writer) {
				fmt.Fprintf(w, "services: created=%d updated=%d skipped=%d synced_catalogs=%d\n",
					stats.Created, stats.Updated, stats.Skipped, stats.Synced)
			})
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "sync each imported service into the catalogs")
	return cmd
}

func importServices(ctx context.Context, a *app.App, r io.Reader, sync bool) (importStats, error) {
	var stats importStats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := readHeader(cr)
	if err != nil {
		return stats, fmt.Errorf("read header: %w", err)
	}

	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, err
		}
		line++
		if len(row) == 0 {
			continue
		}

		svc, err := serviceFromRow(header, row)
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}
		if svc.Language == "" || svc.DisplayName == "" {
			stats.Skipped++
			continue
		}

		existing, err := findExisting(ctx, a, svc)
		if err != nil {
			return stats, err
		}

		var saved *models.CanonicalService
		if existing == nil {
			saved, err = a.Services.Create(ctx, svc)
			stats.Created++
		} else {
			svc.CanonicalRef = existing.CanonicalRef
			if svc.LegacyID == 0 {
				svc.LegacyID = existing.LegacyID
			}
			saved, err = a.Services.Update(ctx, svc)
			stats.Updated++
		}
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}

		if sync && saved != nil {
			res, err := a.Reconciler.OnServiceUpdated(ctx, *saved)
			if err != nil {
				return stats, err
			}
			stats.Synced += res.UpdatedCatalogCount
		}
	}
	return stats, nil
}

func findExisting(ctx context.Context, a *app.App, svc models.CanonicalService) (*models.CanonicalService, error) {
	if svc.CanonicalRef != "" {
		s, err := a.Services.FindByCanonicalRef(ctx, svc.CanonicalRef)
		if err != nil || s != nil {
			return s, err
		}
	}
	if svc.LegacyID > 0 {
		return a.Services.FindByLegacyID(ctx, svc.Language, svc.LegacyID)
	}
	return nil, nil
}

func serviceFromRow(header map[string]int, row []string) (models.CanonicalService, error) {
	svc := models.CanonicalService{
		CanonicalRef: valueAt(header, row, "canonical_ref"),
		Language:     valueAt(header, row, "language"),
		DisplayName:  valueAt(header, row, "display_name"),
		IconURL:      valueAt(header, row, "icon_url"),
		Active:       true,
	}
	if raw := valueAt(header, row, "legacy_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id < 0 {
			return svc, fmt.Errorf("bad legacy_id %q", raw)
		}
		svc.LegacyID = id
	}
	if raw := valueAt(header, row, "active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return svc, fmt.Errorf("bad active %q", raw)
		}
		svc.Active = active
	}
	plan, err := parsePrices(valueAt(header, row, "prices"))
	if err != nil {
		return svc, err
	}
	plan.Currency = valueAt(header, row, "currency")
	svc.PricingPlan = plan
	return svc, nil
}

// parsePrices reads "1x1=9.99;12x1=7.99".
func parsePrices(raw string) (models.PricingPlan, error) {
	plan := models.PricingPlan{Options: []models.PriceOption{}}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		shape, price, ok := strings.Cut(part, "=")
		if !ok {
			return plan, fmt.Errorf("bad price %q", part)
		}
		months, seats, ok := strings.Cut(shape, "x")
		if !ok {
			return plan, fmt.Errorf("bad price shape %q", shape)
		}
		m, err := strconv.Atoi(strings.TrimSpace(months))
		if err != nil {
			return plan, fmt.Errorf("bad months in %q", part)
		}
		s, err := strconv.Atoi(strings.TrimSpace(seats))
		if err != nil {
			return plan, fmt.Errorf("bad seats in %q", part)
		}
		price = strings.TrimSpace(price)
		if !models.IsDecimalPrice(price) {
			return plan, fmt.Errorf("bad price value in %q", part)
		}
		plan.Options = append(plan.Options, models.PriceOption{
			DurationMonths: m,
			Seats:          s,
			Price:          price,
		})
	}
	return plan, nil
}

func newImportCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog <file.json>",
		Short: "Replace catalog documents from JSON",
		Long: `The file holds one catalog document or an array of them:
{"language":"en","categories":[{"id":"vpn","name":"VPN","entries":[...]}]}`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			docs, err := decodeCatalogs(raw)
			if err != nil {
				return err
			}

			a, err := rootOpts.openLocal(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			langs := make([]string, 0, len(docs))
			for _, doc := range docs {
				if err := a.Catalogs.ReplaceDocument(cmd.Context(), doc); err != nil {
					return err
				}
				langs = append(langs, doc.Language)
			}

			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return out.Success(map[string]any{"languages": langs}, func(w io.Writer) {
				for _, doc := range docs {
					fmt.Fprintf(w, "catalog %s: %d categories, %d entries\n", doc.Language, len(doc.Categories), doc.EntryCount())
				}
			})
		},
	}
}

func decodeCatalogs(raw []byte) ([]models.CatalogDocument, error) {
	trimmed := strings.TrimSpace(string(raw))
	var docs []models.CatalogDocument
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &docs); err != nil {
			return nil, fmt.Errorf("decode catalogs: %w", err)
		}
	} else {
		var doc models.CatalogDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
		docs = append(docs, doc)
	}
	for i, doc := range docs {
		if doc.Language == "" {
			return nil, fmt.Errorf("catalog %d: language required", i)
		}
	}
	return docs, nil
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
