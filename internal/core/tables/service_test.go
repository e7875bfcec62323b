package tables

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tablekit/internal/access"
	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/core/columns"
	"github.com/JonMunkholm/tablekit/internal/core/interchange"
	"github.com/JonMunkholm/tablekit/internal/docstore"
)

const today = "2026-10-18"

var testNow = time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *docstore.Faulty
	owner context.Context
	other context.Context
	admin context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := docstore.NewFaulty(docstore.NewMemory())
	svc := NewService(store,
		WithClock(func() time.Time { return testNow }),
		WithReservedCollections("users", "auditLog"),
		WithAudit(core.NewAuditLog(store, "auditLog")),
	)
	bg := context.Background()
	return &fixture{
		svc:   svc,
		store: store,
		owner: access.WithIdentity(bg, access.Identity{UserID: "owner", Email: "owner@example.com", Status: access.StatusApproved, Role: access.RoleMember}),
		other: access.WithIdentity(bg, access.Identity{UserID: "other", Status: access.StatusApproved, Role: access.RoleMember}),
		admin: access.WithIdentity(bg, access.Identity{UserID: "root", Status: access.StatusApproved, Role: access.RoleAdmin}),
	}
}

func serials(rows []map[string]any) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = cast.ToInt(r[columns.SerialNoID])
	}
	return out
}

func columnIDs(defs []columns.Definition) []string {
	ids := make([]string, len(defs))
	for i, d := range defs {
		ids[i] = d.ID
	}
	return ids
}

// requireDocumentsHaveColumns checks that every row document carries exactly
// the defined column ids besides the implicit fields.
func requireDocumentsHaveColumns(t *testing.T, f *fixture, coll string, want []string) {
	t.Helper()
	docs, err := f.store.List(context.Background(), coll, docstore.Query{})
	require.NoError(t, err)
	for _, doc := range docs {
		var got []string
		for k := range doc.Data {
			if !columns.IsImplicitField(k) {
				got = append(got, k)
			}
		}
		assert.ElementsMatch(t, want, got, "document %s", doc.ID)
	}
}

func TestSanitizeCollectionName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Table", "my_table"},
		{"  Sales -- Q3!! ", "sales_q3"},
		{"2024 Report", "2024_report"},
		{"___a___", "a"},
		{"Ünïcode", "n_code"},
		{"!!!", ""},
		{strings.Repeat("a", 150), strings.Repeat("a", 100)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeCollectionName(tt.in))
		})
	}
}

func TestTableLifecycleScenario(t *testing.T) {
	f := newFixture(t)

	meta, err := f.svc.CreateTable(f.owner, "My Table")
	require.NoError(t, err)
	assert.Equal(t, "my_table", meta.CollectionName)
	assert.Equal(t, 1, meta.ColumnCount)
	assert.Equal(t, 0, meta.RowCount)

	empty, err := f.svc.LoadTable(f.owner, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{columns.SerialNoID}, columnIDs(empty.Columns))
	assert.Empty(t, empty.Rows)

	_, err = f.svc.AddRow(f.owner, meta.ID)
	require.NoError(t, err)
	_, err = f.svc.AddRow(f.owner, meta.ID)
	require.NoError(t, err)

	data, err := f.svc.AddColumn(f.owner, meta.ID, "Due Date", columns.Date)
	require.NoError(t, err)
	assert.Equal(t, []string{columns.SerialNoID, "due_date"}, columnIDs(data.Columns))
	assert.Equal(t, 2, data.Table.ColumnCount)
	for _, row := range data.Rows {
		assert.Equal(t, today, row["due_date"])
	}

	data, err = f.svc.AddRow(f.owner, meta.ID)
	require.NoError(t, err)
	require.Len(t, data.Rows, 3)
	added := data.Rows[2]
	assert.Equal(t, today, added["due_date"])
	assert.Equal(t, data.Table.RowCount, cast.ToInt(added[columns.SerialNoID]))

	data, err = f.svc.DeleteRow(f.owner, meta.ID, added["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, 2, data.Table.RowCount)
	assert.Equal(t, []int{1, 2}, serials(data.Rows))
	requireDocumentsHaveColumns(t, f, "my_table", []string{"due_date"})
}

func TestCreateTableRejectsTakenNames(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateTable(f.owner, "Inventory")
	require.NoError(t, err)

	var ve *core.ValidationError
	_, err = f.svc.CreateTable(f.other, "inventory!")
	require.ErrorAs(t, err, &ve, "an empty table still claims its collection")

	_, err = f.store.Insert(context.Background(), "legacy_data", map[string]any{"x": 1})
	require.NoError(t, err)
	_, err = f.svc.CreateTable(f.owner, "Legacy Data")
	require.ErrorAs(t, err, &ve)

	_, err = f.svc.CreateTable(f.owner, "   ")
	require.ErrorAs(t, err, &ve)
	_, err = f.svc.CreateTable(f.owner, "Users")
	require.ErrorAs(t, err, &ve)
}

func TestAddColumnRejectsReservedNames(t *testing.T) {
	f := newFixture(t)
	meta, err := f.svc.CreateTable(f.owner, "t")
	require.NoError(t, err)

	for _, name := range []string{"Serial No.", "serialno", "SerialNo", "SERIAL NO.", "id", "createdAt"} {
		for _, typ := range []columns.Type{columns.Text, columns.Number, columns.Date} {
			_, err := f.svc.AddColumn(f.owner, meta.ID, name, typ)
			var ve *core.ValidationError
			assert.ErrorAs(t, err, &ve, "%q as %s", name, typ)
		}
	}

	_, err = f.svc.AddColumn(f.owner, meta.ID, "Price", columns.Type("money"))
	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = f.svc.AddColumn(f.owner, meta.ID, "Price", columns.Number)
	require.NoError(t, err)
	_, err = f.svc.AddColumn(f.owner, meta.ID, "price", columns.Text)
	require.ErrorAs(t, err, &ve, "column ids are unique")
}

func TestDeleteColumn(t *testing.T) {
	f := newFixture(t)
	meta, err := f.svc.CreateTable(f.owner, "t")
	require.NoError(t, err)
	for range 3 {
		_, err = f.svc.AddRow(f.owner, meta.ID)
		require.NoError(t, err)
	}
	_, err = f.svc.AddColumn(f.owner, meta.ID, "Keep", columns.Text)
	require.NoError(t, err)
	_, err = f.svc.AddColumn(f.owner, meta.ID, "Drop Me", columns.Boolean)
	require.NoError(t, err)
	requireDocumentsHaveColumns(t, f, "t", []string{"keep", "drop_me"})

	data, err := f.svc.DeleteColumn(f.owner, meta.ID, "drop_me")
	require.NoError(t, err)
	assert.Equal(t, []string{columns.SerialNoID, "keep"}, columnIDs(data.Columns))
	assert.Equal(t, 2, data.Table.ColumnCount)
	requireDocumentsHaveColumns(t, f, "t", []string{"keep"})

	data, err = f.svc.DeleteColumn(f.owner, meta.ID, columns.SerialNoID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, serials(data.Rows))

	_, err = f.svc.DeleteColumn(f.owner, meta.ID, "missing")
	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)

	_, err = f.svc.DeleteColumn(f.owner, meta.ID, "keep")
	require.NoError(t, err)
	got, err := f.svc.GetTable(f.owner, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ColumnCount)
}

func TestDeleteRowKeepsSerialsDense(t *testing.T) {
	f := newFixture(t)
	meta, err := f.svc.CreateTable(f.owner, "t")
	require.NoError(t, err)

	var data *TableData
	for range 5 {
		data, err = f.svc.AddRow(f.owner, meta.ID)
		require.NoError(t, err)
	}
	require.Equal(t, []int{1, 2, 3, 4, 5}, serials(data.Rows))
	ids := []string{data.Rows[0]["id"].(string), data.Rows[2]["id"].(string), data.Rows[4]["id"].(string)}

	data, err = f.svc.DeleteRow(f.owner, meta.ID, ids[1])
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, serials(data.Rows))
	assert.Equal(t, ids[0], data.Rows[0]["id"])
	assert.Equal(t, ids[2], data.Rows[3]["id"])

	data, err = f.svc.DeleteRow(f.owner, meta.ID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, serials(data.Rows))
	assert.Equal(t, 3, data.Table.RowCount)

	_, err = f.svc.DeleteRow(f.owner, meta.ID, "missing")
	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestAddColumnPartialFailure(t *testing.T) {
	f := newFixture(t)
	meta, err := f.svc.CreateTable(f.owner, "t")
	require.NoError(t, err)
	var data *TableData
	for range 3 {
		data, err = f.svc.AddRow(f.owner, meta.ID)
		require.NoError(t, err)
	}
	badID := data.Rows[1]["id"].(string)

	f.store.Arm(func(op, coll, id string, _ map[string]any) error {
		if op == "update" && coll == "t" && id == badID {
			return docstore.Failure(docstore.CodeUnavailable, op)
		}
		return nil
	})
	_, err = f.svc.AddColumn(f.owner, meta.ID, "Notes", columns.Text)
	f.store.Arm(nil)

	var pf *core.PartialBatchFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, 3, pf.Result.Total)
	assert.Equal(t, 2, pf.Result.Succeeded)
	require.Len(t, pf.Result.Failed, 1)
	assert.Equal(t, badID, pf.Result.Failed[0].DocID)
	assert.Equal(t, docstore.CodeUnavailable, docstore.CodeOf(err))

	got, err := f.svc.LoadTable(f.owner, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{columns.SerialNoID}, columnIDs(got.Columns), "schema is unchanged after a partial failure")

	for _, row := range got.Rows {
		_, has := row["notes"]
		assert.Equal(t, row["id"] != badID, has, "row %s", row["id"])
	}
}

func TestUpdateCell(t *testing.T) {
	f := newFixture(t)
	meta, err := f.svc.CreateTable(f.owner, "t")
	require.NoError(t, err)
	_, err = f.svc.AddColumn(f.owner, meta.ID, "Qty", columns.Number)
	require.NoError(t, err)
	_, err = f.svc.AddColumn(f.owner, meta.ID, "Contact", columns.Email)
	require.NoError(t, err)
	data, err := f.svc.AddRow(f.owner, meta.ID)
	require.NoError(t, err)
	rowID := data.Rows[0]["id"].(string)

	data, err = f.svc.UpdateCell(f.owner, meta.ID, rowID, "qty", "42")
	require.NoError(t, err)
	assert.Equal(t, float64(42), data.Rows[0]["qty"])

	var ve *core.ValidationError
	_, err = f.svc.UpdateCell(f.owner, meta.ID, rowID, "qty", "lots")
	require.ErrorAs(t, err, &ve)
	_, err = f.svc.UpdateCell(f.owner, meta.ID, rowID, "contact", "not an email")
	require.ErrorAs(t, err, &ve)
	_, err = f.svc.UpdateCell(f.owner, meta.ID, rowID, columns.SerialNoID, 9)
	require.ErrorAs(t, err, &ve)

	var nf *core.NotFoundError
	_, err = f.svc.UpdateCell(f.owner, meta.ID, "missing", "qty", 1)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "row", nf.Kind)
	_, err = f.svc.UpdateCell(f.owner, meta.ID, rowID, "nope", 1)
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "column", nf.Kind)
}

func TestAccessControl(t *testing.T) {
	f := newFixture(t)
	meta, err := f.svc.CreateTable(f.owner, "Private")
	require.NoError(t, err)

	_, err = f.svc.LoadTable(f.other, meta.ID)
	var pe *core.PermissionError
	require.ErrorAs(t, err, &pe)

	_, err = f.svc.AddRow(context.Background(), meta.ID)
	require.ErrorIs(t, err, core.ErrUnauthenticated)

	pending := access.WithIdentity(context.Background(), access.Identity{UserID: "owner", Status: access.StatusPending})
	_, err = f.svc.LoadTable(pending, meta.ID)
	require.ErrorAs(t, err, &pe)

	_, err = f.svc.AddRow(f.admin, meta.ID)
	require.NoError(t, err)

	_, err = f.svc.LoadTable(f.owner, "missing")
	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestListTables(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateTable(f.owner, "One")
	require.NoError(t, err)
	_, err = f.svc.CreateTable(f.other, "Two")
	require.NoError(t, err)

	mine, err := f.svc.ListTables(f.owner)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "One", mine[0].Name)
	assert.Equal(t, "owner@example.com", mine[0].OwnerEmail)

	_, err = f.svc.ListAllTables(f.owner)
	var pe *core.PermissionError
	require.ErrorAs(t, err, &pe)

	all, err := f.svc.ListAllTables(f.admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCSVRoundTripThroughTables(t *testing.T) {
	f := newFixture(t)
	src, err := f.svc.CreateTable(f.owner, "Source")
	require.NoError(t, err)
	for _, c := range []struct {
		name string
		typ  columns.Type
	}{{"Name", columns.Text}, {"Score", columns.Number}, {"Done", columns.Boolean}, {"Due", columns.Date}} {
		_, err = f.svc.AddColumn(f.owner, src.ID, c.name, c.typ)
		require.NoError(t, err)
	}
	for _, vals := range []map[string]any{
		{"name": "Smith, J", "score": 2.5, "done": true},
		{"name": `say "hi"`, "score": 0, "done": false},
	} {
		data, err := f.svc.AddRow(f.owner, src.ID)
		require.NoError(t, err)
		rowID := data.Rows[len(data.Rows)-1]["id"].(string)
		for col, v := range vals {
			_, err = f.svc.UpdateCell(f.owner, src.ID, rowID, col, v)
			require.NoError(t, err)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(f.owner, src.ID, interchange.FormatCSV, &buf))

	dst, err := f.svc.CreateTable(f.owner, "Target")
	require.NoError(t, err)
	res, err := f.svc.Import(f.owner, dst.ID, "source.csv", &buf, false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)

	before, err := f.svc.LoadTable(f.owner, src.ID)
	require.NoError(t, err)
	after, err := f.svc.LoadTable(f.owner, dst.ID)
	require.NoError(t, err)

	require.Len(t, after.Rows, len(before.Rows))
	assert.Equal(t, []int{1, 2}, serials(after.Rows))
	for i := range before.Rows {
		for _, col := range before.Columns[1:] {
			got, ok := columns.Find(after.Columns, col.ID)
			require.True(t, ok, col.ID)
			assert.Equal(t, col.Name, got.Name)
			assert.Equal(t, before.Rows[i][col.ID], after.Rows[i][col.ID], "row %d column %s", i, col.ID)
		}
	}
}

func TestImportAppendBackfills(t *testing.T) {
	f := newFixture(t)
	meta, err := f.svc.CreateTable(f.owner, "t")
	require.NoError(t, err)
	_, err = f.svc.AddColumn(f.owner, meta.ID, "A", columns.Text)
	require.NoError(t, err)
	for range 2 {
		_, err = f.svc.AddRow(f.owner, meta.ID)
		require.NoError(t, err)
	}

	input := `{"columns": [{"id": "b", "name": "B", "type": "number"}], "rows": [{"b": 5, "serialNo": 99}]}`
	res, err := f.svc.Import(f.owner, meta.ID, "more.json", strings.NewReader(input), true)
	require.NoError(t, err)
	assert.True(t, res.IsAppend)
	require.Len(t, res.Added, 1)

	data, err := f.svc.LoadTable(f.owner, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{columns.SerialNoID, "a", "b"}, columnIDs(data.Columns))
	assert.Equal(t, 3, data.Table.RowCount)
	assert.Equal(t, []int{1, 2, 3}, serials(data.Rows))
	assert.Equal(t, float64(0), data.Rows[0]["b"])
	assert.Equal(t, "", data.Rows[2]["a"])
	assert.Equal(t, float64(5), data.Rows[2]["b"])
	requireDocumentsHaveColumns(t, f, "t", []string{"a", "b"})
}

func TestImportReplace(t *testing.T) {
	f := newFixture(t)
	meta, err := f.svc.CreateTable(f.owner, "t")
	require.NoError(t, err)
	_, err = f.svc.AddColumn(f.owner, meta.ID, "Old", columns.Text)
	require.NoError(t, err)
	for range 3 {
		_, err = f.svc.AddRow(f.owner, meta.ID)
		require.NoError(t, err)
	}

	_, err = f.svc.Import(f.owner, meta.ID, "new.csv", strings.NewReader("Serial No.,Qty\n7,1\n8,2\n"), false)
	require.NoError(t, err)

	data, err := f.svc.LoadTable(f.owner, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{columns.SerialNoID, "qty"}, columnIDs(data.Columns))
	assert.Equal(t, []int{1, 2}, serials(data.Rows))
	assert.Equal(t, float64(2), data.Rows[1]["qty"])
	assert.Equal(t, 2, data.Table.RowCount)
}

func TestImportRejectsBeforeWriting(t *testing.T) {
	f := newFixture(t)
	meta, err := f.svc.CreateTable(f.owner, "t")
	require.NoError(t, err)
	_, err = f.svc.AddRow(f.owner, meta.ID)
	require.NoError(t, err)

	var ue *core.UnsupportedFormatError
	_, err = f.svc.Import(f.owner, meta.ID, "sheet.xlsx", strings.NewReader("junk"), false)
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, interchange.ExcelUnavailable, ue.Message)

	var fe *core.FormatError
	_, err = f.svc.Import(f.owner, meta.ID, "bad.json", strings.NewReader(`{"rows": []}`), false)
	require.ErrorAs(t, err, &fe)

	data, err := f.svc.LoadTable(f.owner, meta.ID)
	require.NoError(t, err)
	assert.Len(t, data.Rows, 1, "failed imports leave existing rows alone")
}

func TestImportStopsMidway(t *testing.T) {
	f := newFixture(t)
	meta, err := f.svc.CreateTable(f.owner, "t")
	require.NoError(t, err)

	inserts := 0
	f.store.Arm(func(op, coll, _ string, _ map[string]any) error {
		if op == "insert" && coll == "t" {
			inserts++
			if inserts == 3 {
				return docstore.Failure(docstore.CodeQuotaExceeded, op)
			}
		}
		return nil
	})
	res, err := f.svc.Import(f.owner, meta.ID, "rows.csv", strings.NewReader("N\n1\n2\n3\n4\n"), true)
	f.store.Arm(nil)

	require.Error(t, err)
	assert.Equal(t, docstore.CodeQuotaExceeded, docstore.CodeOf(err))
	assert.Equal(t, 2, res.Imported)

	data, err := f.svc.LoadTable(f.owner, meta.ID)
	require.NoError(t, err)
	assert.Len(t, data.Rows, 2)
	assert.Equal(t, 2, data.Table.RowCount)
}

func TestLegacyTableLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tableID, err := f.store.Insert(ctx, DefaultMetadataCollection, map[string]any{
		"name":           "Legacy",
		"userId":         "owner",
		"collectionName": "legacy",
		"rowCount":       2,
		"columnCount":    2,
		"createdAt":      testNow,
	})
	require.NoError(t, err)
	_, err = f.store.Insert(ctx, "legacy", map[string]any{"serialNo": 1, "title": "hello", "createdAt": testNow})
	require.NoError(t, err)
	_, err = f.store.Insert(ctx, "legacy", map[string]any{"serialNo": 2, "title": "world", "hidden": "x"})
	require.NoError(t, err)

	data, err := f.svc.LoadTable(f.owner, tableID)
	require.NoError(t, err)
	assert.False(t, data.Table.HasSchema())
	assert.Equal(t, []string{columns.SerialNoID, "title"}, columnIDs(data.Columns))
	assert.Equal(t, columns.Text, data.Columns[1].Type)
	assert.Len(t, data.Rows, 2)

	_, err = f.svc.AddColumn(f.owner, tableID, "Count", columns.Number)
	require.NoError(t, err)
	got, err := f.svc.GetTable(f.owner, tableID)
	require.NoError(t, err)
	assert.True(t, got.HasSchema(), "the first structural change persists the schema")
	assert.Equal(t, []string{"title", "count"}, columnIDs(got.Columns))
}

func TestDeleteTableReportsOrphans(t *testing.T) {
	f := newFixture(t)
	meta, err := f.svc.CreateTable(f.owner, "Doomed")
	require.NoError(t, err)
	var data *TableData
	for range 3 {
		data, err = f.svc.AddRow(f.owner, meta.ID)
		require.NoError(t, err)
	}
	stuck := data.Rows[0]["id"].(string)

	f.store.Arm(func(op, coll, id string, _ map[string]any) error {
		if op == "delete" && coll == "doomed" && id == stuck {
			return docstore.Failure(docstore.CodePermissionDenied, op)
		}
		return nil
	})
	err = f.svc.DeleteTable(f.owner, meta.ID)
	f.store.Arm(nil)

	var pf *core.PartialBatchFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, 2, pf.Result.Succeeded)

	_, err = f.svc.GetTable(f.owner, meta.ID)
	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf, "metadata is deleted first")

	orphans, err := f.svc.Orphans(f.admin)
	require.NoError(t, err)
	assert.Equal(t, []Orphan{{Collection: "doomed", Documents: 1}}, orphans)

	_, err = f.svc.Orphans(f.owner)
	var pe *core.PermissionError
	require.ErrorAs(t, err, &pe)
}

func TestDeleteTable(t *testing.T) {
	f := newFixture(t)
	meta, err := f.svc.CreateTable(f.owner, "Gone")
	require.NoError(t, err)
	_, err = f.svc.AddRow(f.owner, meta.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteTable(f.owner, meta.ID))
	orphans, err := f.svc.FindOrphans(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orphans)

	_, err = f.svc.CreateTable(f.owner, "Gone")
	assert.NoError(t, err, "the name is free again")
}

func TestExportEmptyTable(t *testing.T) {
	f := newFixture(t)
	meta, err := f.svc.CreateTable(f.owner, "Empty")
	require.NoError(t, err)

	err = f.svc.Export(f.owner, meta.ID, interchange.FormatJSON, &bytes.Buffer{})
	assert.True(t, errors.Is(err, interchange.ErrNoData))
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Preview(f.owner, "people.csv", strings.NewReader("Name,Age\nAnn,31\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, p.TotalRows)

	_, err = f.svc.Preview(context.Background(), "people.csv", strings.NewReader(""))
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestExportFileName(t *testing.T) {
	assert.Equal(t, "my-table-2026-10-18.csv", ExportFileName("My Table", interchange.FormatCSV, testNow))
	assert.Equal(t, "table-2026-10-18.json", ExportFileName("", interchange.FormatJSON, testNow))
}

func TestOrphanScanner(t *testing.T) {
	f := newFixture(t)

	_, err := NewOrphanScanner(f.svc, "every now and then")
	assert.Error(t, err)

	sc, err := NewOrphanScanner(f.svc, "")
	require.NoError(t, err)
	require.Len(t, sc.cron.Entries(), 1)

	_, err = f.store.Insert(context.Background(), "stray", map[string]any{"a": 1})
	require.NoError(t, err)
	sc.scan()

	sc.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sc.Stop(ctx)
}

func TestUpdateCellRejectsNonFiniteNumbers(t *testing.T) {
	f := newFixture(t)
	meta, err := f.svc.CreateTable(f.owner, "Ledger")
	require.NoError(t, err)
	_, err = f.svc.AddColumn(f.owner, meta.ID, "Amount", columns.Number)
	require.NoError(t, err)
	data, err := f.svc.AddRow(f.owner, meta.ID)
	require.NoError(t, err)
	rowID := data.Rows[0]["id"].(string)

	for _, v := range []any{"Infinity", "Inf", "+Inf", "-Inf", "NaN", "1e400", math.Inf(1), math.NaN()} {
		t.Run(fmt.Sprint(v), func(t *testing.T) {
			var ve *core.ValidationError
			_, err := f.svc.UpdateCell(f.owner, meta.ID, rowID, "amount", v)
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "amount", ve.Field)
		})
	}

	data, err = f.svc.LoadTable(f.owner, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(0), data.Rows[0]["amount"])

	for _, format := range []interchange.Format{interchange.FormatCSV, interchange.FormatJSON} {
		var buf bytes.Buffer
		require.NoError(t, f.svc.Export(f.owner, meta.ID, format, &buf), "export %s", format)
	}
}

func TestExportMapsStoredNonFiniteNumbersToZero(t *testing.T) {
	f := newFixture(t)
	meta, err := f.svc.CreateTable(f.owner, "Legacy")
	require.NoError(t, err)
	_, err = f.svc.AddColumn(f.owner, meta.ID, "Amount", columns.Number)
	require.NoError(t, err)
	data, err := f.svc.AddRow(f.owner, meta.ID)
	require.NoError(t, err)
	rowID := data.Rows[0]["id"].(string)

	// Written around the validator, as older data may have been.
	require.NoError(t, f.store.Update(context.Background(), "legacy", rowID, map[string]any{"amount": math.Inf(1)}))

	data, err = f.svc.LoadTable(f.owner, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, float64(0), data.Rows[0]["amount"])

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(f.owner, meta.ID, interchange.FormatCSV, &buf))
	assert.Equal(t, "Serial No.,Amount\n1,0", buf.String())

	buf.Reset()
	require.NoError(t, f.svc.Export(f.owner, meta.ID, interchange.FormatJSON, &buf))
	assert.Contains(t, buf.String(), `"amount": 0`)
}
