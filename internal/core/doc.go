// Package core implements bulk synchronization of tabular data with an
// eLabFTW server.
//
// This package contains all domain logic independent of any UI or
// transport layer. It can be driven by the web form server, the CLI, or
// tests without modification.
//
// # Architecture
//
// The package is organized around a small pipeline:
//
//   - Row loading: [OpenRows] turns a CSV or XLSX file into an ordered,
//     lazily read sequence of rows. Unreadable files and files without a
//     single data row abort with a [FormatError] before anything is sent
//     to the server.
//   - Field mapping: [BuildMappingTable] resolves the file's header
//     against a [Profile] exactly once per run; [MappingTable.MapRow]
//     then transforms each row into a [Record] without touching the
//     network. Headers that match a fixed field are matched
//     case-insensitively after canonicalization; everything else becomes
//     an extra field with an inferred type.
//   - Remote sync: [Engine.Run] walks the records in file order and
//     performs one blocking API call per record. A failed record is
//     recorded and the run continues; only file-level problems abort a
//     run.
//   - Export: [Engine.Export] pulls every record of a category (or all
//     experiments) and writes them to a spreadsheet whose columns are
//     the union of all extra fields seen.
//
// # Profiles
//
// Profiles are registered at init time using [Register]. Each [Profile]
// names the record kind it targets and the fixed columns the server
// understands:
//
//	core.Register(Profile{
//	    Info:   ProfileInfo{Key: "resources", Label: "Resources", Kind: elabftw.KindResource},
//	    Fields: []FieldSpec{
//	        {Name: "id", PatchRequired: true, Normalizer: core.NormalizeID},
//	        {Name: "title", CreateRequired: true},
//	    },
//	})
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - FILE001-FILE006: File errors (type, size, encoding, empty files)
//   - VAL001-VAL004: Validation errors (missing columns, empty fields)
//   - API001-API008: Server errors (duplicates, auth, timeouts)
//   - RUN001-RUN004: Run errors (cancelled, busy, not found)
//   - EXP001-EXP002: Export errors (nothing to export, write failures)
package core
