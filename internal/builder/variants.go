package builder

import (
	"strings"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
)

var (
	columns = nestedField{
		path:    "columns",
		names:   "columnNames",
		status:  "columnDescriptionStatus",
		suggest: "column_suggest",
	}
	schemaFields = nestedField{
		path:    "messageSchema.schemaFields",
		names:   "fieldNames",
		suggest: "field_suggest",
	}
)

// DefaultVariants returns a fresh copy of the built-in variant table.
func DefaultVariants() map[string]Variant {
	v := map[string]Variant{
		// data assets
		domain.EntityTypeTable: &variant{
			nameWeight: 10, fqnWeight: 5, tier: true, lineage: true,
			refs:     []string{"service", "database", "databaseSchema"},
			nested:   []nestedField{columns},
			excluded: []string{"sampleData", "tableProfilerConfig", "joins", "columns.profile", "customMetrics"},
		},
		domain.EntityTypeTopic: &variant{
			nameWeight: 10, fqnWeight: 5, tier: true, lineage: true,
			refs:     []string{"service"},
			nested:   []nestedField{schemaFields},
			excluded: []string{"sampleData"},
		},
		domain.EntityTypeDashboard: &variant{
			nameWeight: 10, fqnWeight: 5, tier: true, lineage: true,
			refs: []string{"service", "charts", "dataModels"},
		},
		domain.EntityTypeChart: &variant{
			nameWeight: 10, fqnWeight: 5, tier: true,
			refs: []string{"service", "dashboards"},
		},
		domain.EntityTypeDashboardDataModel: &variant{
			nameWeight: 10, fqnWeight: 5, tier: true, lineage: true,
			refs:   []string{"service"},
			nested: []nestedField{columns},
		},
		domain.EntityTypePipeline: &variant{
			nameWeight: 10, fqnWeight: 5, tier: true, lineage: true,
			refs:   []string{"service"},
			nested: []nestedField{{path: "tasks", names: "taskNames", suggest: "task_suggest"}},
		},
		domain.EntityTypeStoredProcedure: &variant{
			nameWeight: 10, fqnWeight: 5, tier: true, lineage: true,
			refs: []string{"service", "database", "databaseSchema"},
		},
		domain.EntityTypeContainer: &variant{
			nameWeight: 10, fqnWeight: 5, tier: true, lineage: true,
			refs: []string{"service", "parent"},
			nested: []nestedField{{
				path: "dataModel.columns", names: "columnNames",
				status: "columnDescriptionStatus", suggest: "column_suggest",
			}},
		},
		domain.EntityTypeMlModel: &variant{
			nameWeight: 10, fqnWeight: 5, tier: true, lineage: true,
			refs:   []string{"service"},
			nested: []nestedField{{path: "mlFeatures", names: "featureNames"}},
		},
		domain.EntityTypeSearchIndex: &variant{
			nameWeight: 10, fqnWeight: 5, tier: true, lineage: true,
			refs:     []string{"service"},
			nested:   []nestedField{{path: "fields", names: "fieldNames", suggest: "field_suggest"}},
			excluded: []string{"sampleData"},
		},
		domain.EntityTypeAPICollection: &variant{
			nameWeight: 10, fqnWeight: 5, tier: true,
			refs: []string{"service"},
		},
		domain.EntityTypeAPIEndpoint: &variant{
			nameWeight: 10, fqnWeight: 5, tier: true, lineage: true,
			refs: []string{"service", "apiCollection"},
			nested: []nestedField{
				{path: "requestSchema.schemaFields", names: "requestFieldNames"},
				{path: "responseSchema.schemaFields", names: "responseFieldNames"},
			},
		},
		domain.EntityTypeQuery: &variant{
			displayNameWeight: 10, tier: true,
			refs: []string{"service", "queryUsedIn", "users"},
		},
		domain.EntityTypeMetric: &variant{
			nameWeight: 10, fqnWeight: 5, tier: true, lineage: true,
			refs: []string{"relatedMetrics"},
		},
		domain.EntityTypeDatabase: &variant{
			nameWeight: 10, fqnWeight: 5, tier: true,
			refs: []string{"service"},
		},
		domain.EntityTypeDatabaseSchema: &variant{
			nameWeight: 10, fqnWeight: 5, tier: true,
			refs: []string{"service", "database"},
		},

		// governance
		domain.EntityTypeGlossary: &variant{nameWeight: 10, fqnWeight: 5},
		domain.EntityTypeGlossaryTerm: &variant{
			nameWeight: 10, fqnWeight: 5, synonyms: true,
			refs: []string{"glossary", "parent", "relatedTerms", "reviewers"},
		},
		domain.EntityTypeClassification: &variant{nameWeight: 10, fqnWeight: 5},
		domain.EntityTypeTag: &variant{
			nameWeight: 10, fqnWeight: 5,
			refs: []string{"classification", "parent"},
		},
		domain.EntityTypeDomain: &variant{
			nameWeight: 10, fqnWeight: 5,
			refs: []string{"parent", "experts"},
		},
		domain.EntityTypeDataProduct: &variant{
			nameWeight: 10, fqnWeight: 5,
			refs:     []string{"experts"},
			excluded: []string{"assets"},
		},
		domain.EntityTypeTeam: &variant{
			nameWeight: 10, displayNameWeight: 10,
			refs:     []string{"parents", "children"},
			excluded: []string{"owns", "users"},
		},
		domain.EntityTypeUser: &variant{
			nameWeight: 10, displayNameWeight: 10,
			refs:     []string{"teams", "roles"},
			excluded: []string{"authenticationMechanism", "owns", "follows"},
		},

		// data quality
		domain.EntityTypeTestCase: &variant{
			nameWeight: 10, fqnWeight: 5,
			refs:     []string{"testSuite", "testSuites", "testDefinition"},
			excluded: []string{"failedRowsSample", "testSuite.changeDescription", "testSuites.changeDescription"},
			enrich:   testCaseOrigin,
		},
		domain.EntityTypeTestSuite: &variant{
			nameWeight: 10, fqnWeight: 5,
			refs:     []string{"executableEntityReference", "tests"},
			excluded: []string{"tests.changeDescription"},
		},
		domain.EntityTypeTestCaseResult: &variant{
			refs: []string{"testCase", "testDefinition", "testSuites"},
			excluded: []string{
				"failedRowsSample", "testCase.changeDescription", "testCase.failedRowsSample",
				"testSuites.changeDescription", "testDefinition.changeDescription",
			},
		},
		domain.EntityTypeTestCaseResolutionStatus: &variant{
			refs:     []string{"testCaseReference"},
			excluded: []string{"testCaseReference.changeDescription"},
		},
	}

	for _, t := range []string{
		domain.EntityTypeDatabaseService,
		domain.EntityTypeDashboardService,
		domain.EntityTypeMessagingService,
		domain.EntityTypePipelineService,
		domain.EntityTypeMlModelService,
		domain.EntityTypeStorageService,
		domain.EntityTypeSearchService,
		domain.EntityTypeAPIService,
		domain.EntityTypeMetadataService,
	} {
		v[t] = serviceVariant(t)
	}

	for _, t := range []string{
		domain.EntityTypeEntityReportData,
		domain.EntityTypeWebAnalyticEntityViewReportData,
		domain.EntityTypeWebAnalyticUserActivityReportData,
		domain.EntityTypeAggregatedCostAnalysisReportData,
		domain.EntityTypeRawCostAnalysisReportData,
	} {
		v[t] = &variant{raw: true}
	}
	return v
}

func serviceVariant(entityType string) *variant {
	excluded := []string{"pipelines", "testConnectionResult", "sourceConfig"}
	switch entityType {
	case domain.EntityTypeMetadataService:
		excluded = append(excluded, "openMetadataServerConnection")
	case domain.EntityTypePipelineService:
		excluded = append(excluded, "airflowConfig")
	}
	return &variant{nameWeight: 10, fqnWeight: 5, tier: true, excluded: excluded}
}

// testCaseOrigin resolves the entity a test case runs against from its
// entity link, e.g. <#E::table::svc.db.sch.orders::columns::id>.
func testCaseOrigin(e *domain.Entity, doc domain.SearchDocument) error {
	link, _ := doc["entityLink"].(string)
	entityType, fqn, ok := parseEntityLink(link)
	if !ok {
		return nil
	}
	doc["originEntityType"] = entityType
	doc["originEntityFQN"] = fqn
	return nil
}

func parseEntityLink(link string) (entityType, fqn string, ok bool) {
	if !strings.HasPrefix(link, "<#E::") || !strings.HasSuffix(link, ">") {
		return "", "", false
	}
	parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(link, "<#E::"), ">"), "::")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
