// Package tables is the dynamic table engine.
//
// A table is a metadata document in the metadata collection plus one
// backing collection holding one document per row. The metadata carries
// the ordered column list; rows carry one value per column, a dense serial
// number and timestamps.
//
// Structural changes (adding or deleting a column, renumbering after a row
// delete, replacing rows on import) are fan-out writes over every row with
// no cross-document transaction. They report per-row outcomes through
// core.BatchResult and leave the metadata untouched when any row fails.
package tables
