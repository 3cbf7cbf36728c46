package caps

// Feature is one capability bit a driver may or may not support, per
// spec.md §3/§4.4. Verification rejects any argument that exercises a
// feature its driver has not declared.
type Feature uint32

const (
	// FeatureSchema: the driver can read a Schema from its locator.
	FeatureSchema Feature = 1 << iota
	// FeatureWriteSchema: the driver can write a Schema to its locator.
	FeatureWriteSchema
	// FeatureLocalData: the driver can stream CSV data through the local
	// process as a source.
	FeatureLocalData
	// FeatureWriteLocalData: the driver can consume CSV data streamed
	// through the local process as a destination.
	FeatureWriteLocalData
	// FeatureWriteRemoteData: the driver can perform an end-to-end
	// transfer without routing bytes through the local process.
	FeatureWriteRemoteData
	// FeatureCount: the driver can report a row count.
	FeatureCount

	// FeatureWhereClause: --where is accepted as a source argument.
	FeatureWhereClause
	// FeatureTemporaryStorage: --temporary is meaningful for this driver.
	FeatureTemporaryStorage
	// FeatureSchemaArg: --schema is accepted to override schema discovery.
	FeatureSchemaArg
	// FeatureFromArg: --from-arg is accepted.
	FeatureFromArg
	// FeatureToArg: --to-arg is accepted.
	FeatureToArg

	// FeatureIfExistsError: if-exists=error is accepted.
	FeatureIfExistsError
	// FeatureIfExistsOverwrite: if-exists=overwrite is accepted.
	FeatureIfExistsOverwrite
	// FeatureIfExistsAppend: if-exists=append is accepted.
	FeatureIfExistsAppend
	// FeatureIfExistsUpsert: if-exists=upsert-on:... is accepted.
	FeatureIfExistsUpsert
)

// Features is the bitset of capabilities a driver declares.
type Features Feature

// Has reports whether all bits in want are set.
func (f Features) Has(want Feature) bool {
	return Feature(f)&want == want
}

// With returns f with the given features added, for concise driver feature
// declarations.
func With(features ...Feature) Features {
	var f Feature
	for _, want := range features {
		f |= want
	}
	return Features(f)
}

// Name returns a human-readable name for a single feature bit, for error
// messages naming the offending flag (spec.md §7 VerificationError).
func (f Feature) Name() string {
	switch f {
	case FeatureSchema:
		return "schema"
	case FeatureWriteSchema:
		return "write_schema"
	case FeatureLocalData:
		return "local_data"
	case FeatureWriteLocalData:
		return "write_local_data"
	case FeatureWriteRemoteData:
		return "write_remote_data"
	case FeatureCount:
		return "count"
	case FeatureWhereClause:
		return "--where"
	case FeatureTemporaryStorage:
		return "--temporary"
	case FeatureSchemaArg:
		return "--schema"
	case FeatureFromArg:
		return "--from-arg"
	case FeatureToArg:
		return "--to-arg"
	case FeatureIfExistsError:
		return "--if-exists=error"
	case FeatureIfExistsOverwrite:
		return "--if-exists=overwrite"
	case FeatureIfExistsAppend:
		return "--if-exists=append"
	case FeatureIfExistsUpsert:
		return "--if-exists=upsert-on"
	default:
		return "unknown feature"
	}
}
