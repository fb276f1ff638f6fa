package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/datamorph-io/forcetap/types"
	"github.com/datamorph-io/forcetap/utils/logger"
)

var stringTypes = map[string]struct{}{
	"id": {}, "string": {}, "picklist": {}, "textarea": {}, "phone": {},
	"url": {}, "reference": {}, "multipicklist": {}, "combobox": {},
	"encryptedstring": {}, "email": {}, "complexvalue": {}, "masterrecord": {},
	"datacategorygroupreference": {},
}

var numberTypes = map[string]struct{}{
	"double": {},
}

// currency could include the ISO code when the org has multicurrency enabled
var numberOrStringTypes = map[string]struct{}{
	"currency": {},
}

var dateTypes = map[string]struct{}{
	"datetime": {}, "date": {},
}

var binaryTypes = map[string]struct{}{
	"base64": {}, "byte": {},
}

// a calculated field's type can be any of the supported formula data types
var looseTypes = map[string]struct{}{
	"anyType": {}, "calculated": {},
}

// objects that do not support ordering by CreatedDate
var forcedFullTable = map[string]struct{}{
	"BackgroundOperationResult": {},
	"LoginEvent":                {},
	"LightningUriEvent":         {},
	"UriEvent":                  {},
	"LogoutEvent":               {},
	"ReportEvent":               {},
}

// objects not supported by the Bulk API
var unsupportedBulkObjects = map[string]struct{}{
	"AssetTokenEvent": {}, "AttachedContentNote": {}, "EventWhoRelation": {},
	"QuoteTemplateRichTextData": {}, "TaskWhoRelation": {}, "SolutionStatus": {},
	"ContractStatus": {}, "RecentlyViewed": {}, "DeclinedEventRelation": {},
	"AcceptedEventRelation": {}, "TaskStatus": {}, "PartnerRole": {},
	"TaskPriority": {}, "CaseStatus": {}, "UndecidedEventRelation": {},
	"OrderStatus": {},
}

// objects with WHERE clause restrictions
var queryRestrictedObjects = map[string]struct{}{
	"Announcement": {}, "ContentDocumentLink": {}, "CollaborationGroupRecord": {},
	"Vote": {}, "IdeaComment": {}, "FieldDefinition": {}, "PlatformAction": {},
	"UserEntityAccess": {}, "RelationshipInfo": {}, "ContentFolderMember": {},
	"ContentFolderItem": {}, "SearchLayout": {}, "SiteDetail": {},
	"EntityParticle": {}, "OwnerChangeOptionInfo": {}, "DataStatistics": {},
	"UserFieldAccess": {}, "PicklistValueInfo": {}, "RelationshipDomain": {},
	"FlexQueueItem": {}, "NetworkUserHistoryRecent": {}, "FieldHistoryArchive": {},
	"RecordActionHistory": {}, "FlowVersionView": {}, "FlowVariableView": {},
	"AppTabMember": {}, "ColorDefinition": {}, "IconDefinition": {},
}

// objects incompatible with the query method in use
var queryIncompatibleObjects = map[string]struct{}{
	"DataType": {}, "ListViewChartInstance": {}, "FeedLike": {}, "OutgoingEmail": {},
	"OutgoingEmailRelation": {}, "FeedSignal": {}, "ActivityHistory": {},
	"EmailStatus": {}, "UserRecordAccess": {}, "Name": {}, "AggregateResult": {},
	"OpenActivity": {}, "ProcessInstanceHistory": {}, "OwnedContentDocument": {},
	"FolderedContentDocument": {}, "FeedTrackedChange": {}, "CombinedAttachment": {},
	"AttachedContentDocument": {}, "ContentBody": {}, "NoteAndAttachment": {},
	"LookedUpFromActivity": {}, "AttachedContentNote": {}, "QuoteTemplateRichTextData": {},
}

func (s *Salesforce) objectBlacklisted(name string) bool {
	if _, found := queryRestrictedObjects[name]; found {
		return true
	}
	if _, found := queryIncompatibleObjects[name]; found {
		return true
	}
	if s.config.APIType == BulkAPI {
		if _, found := unsupportedBulkObjects[name]; found {
			return true
		}
	}
	return false
}

// blacklistedFields maps (object, field) pairs excluded per API type.
func (s *Salesforce) blacklistedFields() map[[2]string]string {
	if s.config.APIType == BulkAPI {
		return map[[2]string]string{
			{"EntityDefinition", "RecordTypesSupported"}: "this field is unsupported by the Bulk API.",
		}
	}
	return map[[2]string]string{}
}

// pickReplicationKey prefers the system modification timestamp over the
// other audit fields.
func pickReplicationKey(objectName string, fieldNames []string) string {
	if _, found := forcedFullTable[objectName]; found {
		return ""
	}

	has := map[string]bool{}
	for _, name := range fieldNames {
		has[name] = true
	}

	switch {
	case has["SystemModstamp"]:
		return "SystemModstamp"
	case has["LastModifiedDate"]:
		return "LastModifiedDate"
	case has["CreatedDate"]:
		return "CreatedDate"
	case has["LoginTime"] && objectName == "LoginHistory":
		return "LoginTime"
	}
	return ""
}

// UnsupportedTypeError reports a source type with no schema mapping.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("found unsupported type: %s", e.Type)
}

// fieldToProperty maps one source field type to a portable schema property.
// The second return value carries an unsupported-description when the field
// cannot be queried.
func fieldToProperty(fieldName, sfType string, isReport bool) (*types.Property, string, error) {
	property := &types.Property{Type: types.NewSet[types.DataType]()}

	switch {
	case inSet(stringTypes, sfType), sfType == "time", sfType == "json":
		property.Type.Insert(types.String)
	case inSet(dateTypes, sfType):
		property.Format = types.FormatDateTime
		property.Type.Insert(types.String, types.Null)
	case sfType == "boolean":
		property.Type.Insert(types.Bool)
	case inSet(numberOrStringTypes, sfType):
		property.Type.Insert(types.Float64, types.String, types.Null)
	case inSet(numberTypes, sfType):
		property.Type.Insert(types.Float64)
	case sfType == "percent":
		// object percents are bare numbers, report percents carry a '%'
		if isReport {
			property.Type.Insert(types.String)
		} else {
			property.Type.Insert(types.Float64)
		}
	case sfType == "address":
		property.Type.Insert(types.Object)
		property.Properties = addressProperties()
	case sfType == "int" || sfType == "long":
		property.Type.Insert(types.Int64)
	case inSet(looseTypes, sfType):
		// no type constraint at all
		return &types.Property{}, "", nil
	case inSet(binaryTypes, sfType):
		return property, "binary data", nil
	case sfType == "location":
		property.Type.Insert(types.Float64, types.Object, types.Null)
		property.Properties = map[string]*types.Property{
			"longitude": {Type: types.NewSet(types.Null, types.Float64)},
			"latitude":  {Type: types.NewSet(types.Null, types.Float64)},
		}
	default:
		return nil, "", &UnsupportedTypeError{Type: sfType}
	}

	// the nillable field reported by describe cannot be trusted
	if fieldName != "Id" && sfType != "location" && !inSet(dateTypes, sfType) && !inSet(numberOrStringTypes, sfType) {
		property.Type.Insert(types.Null)
	}

	return property, "", nil
}

func addressProperties() map[string]*types.Property {
	nullString := func() *types.Property {
		return &types.Property{Type: types.NewSet(types.Null, types.String)}
	}
	nullNumber := func() *types.Property {
		return &types.Property{Type: types.NewSet(types.Null, types.Float64)}
	}
	return map[string]*types.Property{
		"street":          nullString(),
		"state":           nullString(),
		"postalCode":      nullString(),
		"city":            nullString(),
		"country":         nullString(),
		"longitude":       nullNumber(),
		"latitude":        nullNumber(),
		"geocodeAccuracy": nullString(),
	}
}

func inSet(set map[string]struct{}, key string) bool {
	_, found := set[key]
	return found
}

type describeField struct {
	Name             string   `json:"name"`
	Type             string   `json:"type"`
	RelationshipName string   `json:"relationshipName"`
	ReferenceTo      []string `json:"referenceTo"`
}

type objectDescription struct {
	Name   string          `json:"name"`
	Fields []describeField `json:"fields"`
}

// discoverObject describes the configured object and builds its stream.
func (s *Salesforce) discoverObject(ctx context.Context) ([]*types.Stream, error) {
	objectName := s.config.ObjectName

	// ChangeEvent objects are not queryable via Bulk or REST (undocumented)
	if s.objectBlacklisted(objectName) || strings.HasSuffix(objectName, "ChangeEvent") {
		return nil, fmt.Errorf("getting requested object [%s] is not supported", objectName)
	}

	// the org may have the Bulk API switched off entirely
	if s.config.APIType == BulkAPI {
		if err := s.checkBulkPermissions(ctx); err != nil {
			return nil, err
		}
	}

	data, err := s.request(ctx, "GET", s.dataURL(fmt.Sprintf("sobjects/%s/describe", objectName)), s.standardHeaders(), nil)
	if err != nil {
		return nil, err
	}

	description := &objectDescription{}
	if err := json.Unmarshal(data, description); err != nil {
		return nil, fmt.Errorf("failed to parse describe response: %s", err)
	}

	fieldNames := make([]string, 0, len(description.Fields))
	for _, field := range description.Fields {
		fieldNames = append(fieldNames, field.Name)
	}
	replicationKey := pickReplicationKey(objectName, fieldNames)

	stream := types.NewStream(objectName, objectName)
	blacklisted := s.blacklistedFields()
	foundID := false

	for _, field := range description.Fields {
		stream.SourceColumnTypes[field.Name] = field.Type

		// compound address and geolocation fields cannot be queried by the
		// Bulk API
		if s.config.APIType == BulkAPI && (field.Type == "address" || field.Type == "location") {
			continue
		}

		if field.Name == "Id" {
			foundID = true
		}

		property, unsupported, err := fieldToProperty(field.Name, field.Type, false)
		if err != nil {
			return nil, err
		}

		md := &types.FieldMetadata{Inclusion: types.InclusionAvailable}
		if field.Name == "Id" {
			md.Inclusion = types.InclusionAutomatic
		}
		// json fields have not been observed in records yet
		if field.Type == "json" {
			unsupported = "do not currently support json fields - please contact support"
		}
		if reason, found := blacklisted[[2]string{objectName, field.Name}]; found {
			unsupported = reason
		}
		if unsupported != "" {
			md.Inclusion = types.InclusionUnsupported
			md.UnsupportedDescription = unsupported
			logger.Infof("Not syncing unsupported field %s for object %s: %s", field.Name, objectName, unsupported)
		} else if s.config.SelectFieldsByDefault {
			md.SelectedByDefault = true
		}

		stream.UpsertField(field.Name, property, md)
	}

	if !foundID {
		return nil, fmt.Errorf("skipping object %s, as it has no Id field", objectName)
	}

	stream.WithPrimaryKey("Id")
	if replicationKey != "" {
		stream.WithReplicationKey(replicationKey)
	}

	return []*types.Stream{stream}, nil
}

type reportColumn struct {
	Label    string `json:"label"`
	DataType string `json:"dataType"`
}

type reportDescription struct {
	Attributes struct {
		ReportName string `json:"reportName"`
	} `json:"attributes"`
	ReportMetadata struct {
		DetailColumns []string `json:"detailColumns"`
	} `json:"reportMetadata"`
	ReportExtendedMetadata struct {
		DetailColumnInfo map[string]reportColumn `json:"detailColumnInfo"`
	} `json:"reportExtendedMetadata"`
}

// discoverReport builds a stream out of a report's detail columns. Reports
// carry no replication key and sync as full table.
func (s *Salesforce) discoverReport(ctx context.Context) ([]*types.Stream, error) {
	data, err := s.request(ctx, "GET", s.dataURL(fmt.Sprintf("analytics/reports/%s/describe", s.config.ReportID)), s.standardHeaders(), nil)
	if err != nil {
		return nil, err
	}

	description := &reportDescription{}
	if err := json.Unmarshal(data, description); err != nil {
		return nil, fmt.Errorf("failed to parse report describe response: %s", err)
	}

	stream := types.NewStream(description.Attributes.ReportName, s.config.ReportID)

	for _, column := range description.ReportMetadata.DetailColumns {
		info, found := description.ReportExtendedMetadata.DetailColumnInfo[column]
		if !found {
			continue
		}

		if s.config.APIType == BulkAPI && (info.DataType == "address" || info.DataType == "location") {
			continue
		}

		property, unsupported, err := fieldToProperty(column, info.DataType, true)
		if err != nil {
			return nil, err
		}

		// currency amounts and their ISO code split into two fields
		if info.DataType == "currency" {
			stream.UpsertField(column+" Currency", &types.Property{
				Type: types.NewSet(types.String, types.Null),
			}, &types.FieldMetadata{
				Inclusion:         types.InclusionAvailable,
				SelectedByDefault: s.config.SelectFieldsByDefault,
			})
		}

		md := &types.FieldMetadata{Inclusion: types.InclusionAvailable}
		if info.DataType == "json" {
			unsupported = "do not currently support json fields - please contact support"
		}
		if unsupported != "" {
			md.Inclusion = types.InclusionUnsupported
			md.UnsupportedDescription = unsupported
			logger.Infof("Not syncing unsupported field %s for report %s: %s", column, s.config.ReportID, unsupported)
		} else if s.config.SelectFieldsByDefault {
			md.SelectedByDefault = true
		}

		stream.SourceColumnTypes[column] = info.DataType
		stream.UpsertField(column, property, md)
	}

	return []*types.Stream{stream}, nil
}
