package domain

import "strings"

// Entity type names as used in index mappings, references, and match fields.
const (
	EntityTypeTable              = "table"
	EntityTypeTopic              = "topic"
	EntityTypeDashboard          = "dashboard"
	EntityTypeChart              = "chart"
	EntityTypeDashboardDataModel = "dashboardDataModel"
	EntityTypePipeline           = "pipeline"
	EntityTypeStoredProcedure    = "storedProcedure"
	EntityTypeContainer          = "container"
	EntityTypeMlModel            = "mlmodel"
	EntityTypeSearchIndex        = "searchIndex"
	EntityTypeAPICollection      = "apiCollection"
	EntityTypeAPIEndpoint        = "apiEndpoint"
	EntityTypeQuery              = "query"
	EntityTypeMetric             = "metric"
	EntityTypeDatabase           = "database"
	EntityTypeDatabaseSchema     = "databaseSchema"

	EntityTypeDatabaseService  = "databaseService"
	EntityTypeDashboardService = "dashboardService"
	EntityTypeMessagingService = "messagingService"
	EntityTypePipelineService  = "pipelineService"
	EntityTypeMlModelService   = "mlmodelService"
	EntityTypeStorageService   = "storageService"
	EntityTypeSearchService    = "searchService"
	EntityTypeAPIService       = "apiService"
	EntityTypeMetadataService  = "metadataService"

	EntityTypeGlossary       = "glossary"
	EntityTypeGlossaryTerm   = "glossaryTerm"
	EntityTypeClassification = "classification"
	EntityTypeTag            = "tag"
	EntityTypeDomain         = "domain"
	EntityTypeDataProduct    = "dataProduct"
	EntityTypeTeam           = "team"
	EntityTypeUser           = "user"

	EntityTypeTestCase                 = "testCase"
	EntityTypeTestSuite                = "testSuite"
	EntityTypeTestCaseResult           = "testCaseResult"
	EntityTypeTestCaseResolutionStatus = "testCaseResolutionStatus"

	EntityTypeEntityReportData                  = "entityReportData"
	EntityTypeWebAnalyticEntityViewReportData   = "webAnalyticEntityViewReportData"
	EntityTypeWebAnalyticUserActivityReportData = "webAnalyticUserActivityReportData"
	EntityTypeAggregatedCostAnalysisReportData  = "aggregatedCostAnalysisReportData"
	EntityTypeRawCostAnalysisReportData         = "rawCostAnalysisReportData"
)

// GlobalAlias covers every searchable index.
const GlobalAlias = "all"

// IsServiceType reports whether entityType is one of the service types.
// Children of a service carry the service under the "service" field.
func IsServiceType(entityType string) bool {
	return strings.HasSuffix(entityType, "Service") && entityType != "service"
}

// IsPipelineLike reports whether lineage for entityType is mediated through
// edges that carry it as their pipeline.
func IsPipelineLike(entityType string) bool {
	return entityType == EntityTypePipeline || entityType == EntityTypeStoredProcedure
}

// ParentMatchField returns the document field matched when propagating or
// cascading from an entity of the given type to its children.
func ParentMatchField(entityType string) string {
	if IsServiceType(entityType) {
		return "service.id"
	}
	return entityType + ".id"
}
