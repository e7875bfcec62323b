package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/JonMunkholm/tablekit/internal/access"
	"github.com/JonMunkholm/tablekit/internal/config"
	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/core/interchange"
	"github.com/JonMunkholm/tablekit/internal/core/tables"
	"github.com/JonMunkholm/tablekit/internal/docstore"
	"github.com/JonMunkholm/tablekit/internal/web/middleware"
)

// operatorID is the identity recorded in the audit log for CLI changes.
const operatorID = "tablectl"

// backend bundles the services a store-backed command needs.
type backend struct {
	store  docstore.Store
	tables *tables.Service
	users  *access.Users
}

func (b *backend) Close() { _ = b.store.Close() }

// openBackend connects to the configured store. The returned context acts
// as an approved admin named by as.
func openBackend(ctx context.Context, as string) (context.Context, *backend, error) {
	var sc config.StoreConfig
	if err := config.LoadSection(&sc); err != nil {
		return nil, nil, err
	}
	var bc config.BatchConfig
	if err := config.LoadSection(&bc); err != nil {
		return nil, nil, err
	}
	var ic config.ImportConfig
	if err := config.LoadSection(&ic); err != nil {
		return nil, nil, err
	}

	store, err := docstore.Open(ctx, sc.Options())
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", sc.Backend, err)
	}
	audit := core.NewAuditLog(store, sc.AuditCollection)
	b := &backend{
		store: store,
		tables: tables.NewService(store,
			tables.WithMetadataCollection(sc.MetadataCollection),
			tables.WithReservedCollections(sc.UsersCollection, sc.AuditCollection),
			tables.WithBatchParallelism(bc.Parallelism),
			tables.WithAudit(audit),
			tables.WithMaxImportBytes(ic.MaxFileSize),
		),
		users: access.NewUsers(store, access.NewStoreFlag(store),
			access.WithUsersCollection(sc.UsersCollection),
			access.WithAudit(audit),
		),
	}

	ctx = access.WithIdentity(ctx, access.Identity{
		UserID: as,
		Status: access.StatusApproved,
		Role:   access.RoleAdmin,
	})
	ctx = core.WithRequestMeta(ctx, core.RequestMeta{UserAgent: "tablectl"})
	return ctx, b, nil
}

func printJSON(e *env, v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSanitize(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "sanitize")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: sanitize <table name>...", errUsage)
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	for _, name := range fs.Args() {
		fmt.Fprintf(tw, "%s\t%s\n", name, tables.SanitizeCollectionName(name))
	}
	return tw.Flush()
}

func runPreview(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "preview")
	file := fs.StringP("file", "f", "", "CSV or JSON file to preview")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("%w: preview --file <path>", errUsage)
	}

	var ic config.ImportConfig
	if err := config.LoadSection(&ic); err != nil {
		return err
	}
	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	name := filepath.Base(*file)
	if _, err := interchange.DetectFormat(name); err != nil {
		return err
	}
	raw, err := interchange.ReadAll(f, ic.MaxFileSize)
	if err != nil {
		return err
	}
	p, err := interchange.PreviewFile(bytes.NewReader(raw), name, time.Now())
	if err != nil {
		return err
	}
	return printJSON(e, p)
}

func runTables(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "tables")
	as := fs.String("as", operatorID, "user id recorded for this operation")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, b, err := openBackend(ctx, *as)
	if err != nil {
		return err
	}
	defer b.Close()

	list, err := b.tables.ListAllTables(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(e, list)
	}
	tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCOLLECTION\tROWS\tOWNER")
	for _, t := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", t.ID, t.Name, t.CollectionName, t.RowCount, t.OwnerEmail)
	}
	return tw.Flush()
}

func runImport(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "import")
	tableID := fs.StringP("table", "t", "", "table id")
	file := fs.StringP("file", "f", "", "CSV or JSON file to import")
	appendRows := fs.Bool("append", false, "append rows instead of replacing the table contents")
	as := fs.String("as", operatorID, "user id recorded for this operation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tableID == "" || *file == "" {
		return fmt.Errorf("%w: import --table <id> --file <path> [--append]", errUsage)
	}

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, b, err := openBackend(ctx, *as)
	if err != nil {
		return err
	}
	defer b.Close()

	res, err := b.tables.Import(ctx, *tableID, filepath.Base(*file), f, *appendRows)
	if err != nil {
		return err
	}
	return printJSON(e, res)
}

func runExport(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "export")
	tableID := fs.StringP("table", "t", "", "table id")
	format := fs.String("format", string(interchange.FormatCSV), "csv or json")
	out := fs.StringP("out", "o", "", `output path; "-" writes to stdout (default: <table>-<date>.<format>)`)
	as := fs.String("as", operatorID, "user id recorded for this operation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tableID == "" {
		return fmt.Errorf("%w: export --table <id> [--format csv|json] [--out path]", errUsage)
	}
	fmtv, err := interchange.ParseFormat(*format)
	if err != nil {
		return err
	}

	ctx, b, err := openBackend(ctx, *as)
	if err != nil {
		return err
	}
	defer b.Close()

	meta, err := b.tables.GetTable(ctx, *tableID)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := b.tables.Export(ctx, *tableID, fmtv, &buf); err != nil {
		return err
	}

	switch *out {
	case "-":
		_, err = buf.WriteTo(e.stdout)
		return err
	case "":
		*out = tables.ExportFileName(meta.Name, fmtv, time.Now())
	}
	if err := os.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(e.stderr, "wrote %s (%d rows)\n", *out, meta.RowCount)
	return nil
}

func runOrphans(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "orphans")
	as := fs.String("as", operatorID, "user id recorded for this operation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, b, err := openBackend(ctx, *as)
	if err != nil {
		return err
	}
	defer b.Close()

	orphans, err := b.tables.Orphans(ctx)
	if err != nil {
		return err
	}
	return printJSON(e, orphans)
}

func runUser(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "user")
	userID := fs.String("id", "", "user id to change")
	status := fs.String("status", "", "pending, approved or rejected")
	role := fs.String("role", "", "none, member or admin")
	as := fs.String("as", operatorID, "user id recorded for this operation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" || (*status == "" && !fs.Changed("role")) {
		return fmt.Errorf("%w: user --id <user> [--status s] [--role r]", errUsage)
	}

	ctx, b, err := openBackend(ctx, *as)
	if err != nil {
		return err
	}
	defer b.Close()

	user, err := b.users.Get(ctx, *userID)
	if err != nil {
		return err
	}
	if *status != "" {
		st, err := access.ParseStatus(*status)
		if err != nil {
			return err
		}
		if user, err = b.users.SetStatus(ctx, *userID, st); err != nil {
			return err
		}
	}
	if fs.Changed("role") {
		r, err := access.ParseRole(*role)
		if err != nil {
			return err
		}
		if user, err = b.users.SetRole(ctx, *userID, r); err != nil {
			return err
		}
	}
	return printJSON(e, user)
}

func runToken(_ context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "token")
	sub := fs.String("sub", "", "subject (user id); random when empty")
	email := fs.String("email", "", "email claim")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var ac config.AuthConfig
	if err := config.LoadSection(&ac); err != nil {
		return err
	}
	if len(ac.JWTSecret) < config.MinJWTSecretLength {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least %d characters", config.MinJWTSecretLength)
	}
	if *sub == "" {
		*sub = uuid.NewString()
	}

	now := time.Now()
	tok, err := middleware.NewTokenVerifier(ac.JWTSecret, ac.Issuer).Sign(middleware.Claims{
		Email: *email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   *sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
		},
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.stdout, tok)
	return err
}
