package sql

import (
	"embed"
)

//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/register_import.sql
var RegisterImport string

//go:embed queries/lookup_import.sql
var LookupImport string

//go:embed queries/update_import_status.sql
var UpdateImportStatus string

//go:embed queries/transform_tariffs.sql
var TransformTariffs string

//go:embed queries/count_unresolved_tariffs.sql
var CountUnresolvedTariffs string

//go:embed queries/delete_staging_batch.sql
var DeleteStagingBatch string

//go:embed queries/analyze_tariffs.sql
var AnalyzeTariffs string

//go:embed queries/dashboard.sql
var Dashboard string
