// Package interchange converts table contents to and from CSV and JSON files.
//
// Export works on whole documents as stored, so it sees every key any row
// carries. Import produces a Dataset: column definitions plus rows keyed by
// column id with values already converted to their column's type. Serial
// numbers are never imported; the table layer regenerates them.
//
// CSV handling is line-oriented. A record is exactly one physical line, so
// quoted values spanning several lines are not supported on import even
// though export quotes values that contain newlines.
package interchange
