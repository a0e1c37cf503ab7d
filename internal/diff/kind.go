package diff

import "github.com/hlop3z/pgphase/internal/snapshot"

// Kind identifies what a Diff is about. Generators switch on it.
type Kind int

const (
	KindUnknown Kind = iota
	KindSchemaCreate
	KindSchemaDrop
	KindExtensionCreate
	KindExtensionDrop
	KindEnumCreate
	KindEnumDrop
	KindEnumChange
	KindTableCreate
	KindTableDrop
	KindColumnCreate
	KindColumnDrop
	KindColumnDataType
	KindColumnDefault
	KindColumnNullable
	KindColumnIdentity
	KindPrimaryKeyCreate
	KindPrimaryKeyDrop
	KindPrimaryKeyChange
	KindUniqueCreate
	KindUniqueDrop
	KindUniqueChange
	KindCheckCreate
	KindCheckDrop
	KindCheckChange
	KindForeignKeyCreate
	KindForeignKeyDrop
	KindForeignKeyChange
	KindIndexCreate
	KindIndexDrop
	KindIndexChange
	KindTriggerCreate
	KindTriggerDrop
	KindTriggerChange
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindSchemaCreate:     "schemaCreate",
	KindSchemaDrop:       "schemaDrop",
	KindExtensionCreate:  "extensionCreate",
	KindExtensionDrop:    "extensionDrop",
	KindEnumCreate:       "enumCreate",
	KindEnumDrop:         "enumDrop",
	KindEnumChange:       "enumChange",
	KindTableCreate:      "tableCreate",
	KindTableDrop:        "tableDrop",
	KindColumnCreate:     "columnCreate",
	KindColumnDrop:       "columnDrop",
	KindColumnDataType:   "columnDataType",
	KindColumnDefault:    "columnDefault",
	KindColumnNullable:   "columnNullable",
	KindColumnIdentity:   "columnIdentity",
	KindPrimaryKeyCreate: "primaryKeyCreate",
	KindPrimaryKeyDrop:   "primaryKeyDrop",
	KindPrimaryKeyChange: "primaryKeyChange",
	KindUniqueCreate:     "uniqueCreate",
	KindUniqueDrop:       "uniqueDrop",
	KindUniqueChange:     "uniqueChange",
	KindCheckCreate:      "checkCreate",
	KindCheckDrop:        "checkDrop",
	KindCheckChange:      "checkChange",
	KindForeignKeyCreate: "foreignKeyCreate",
	KindForeignKeyDrop:   "foreignKeyDrop",
	KindForeignKeyChange: "foreignKeyChange",
	KindIndexCreate:      "indexCreate",
	KindIndexDrop:        "indexDrop",
	KindIndexChange:      "indexChange",
	KindTriggerCreate:    "triggerCreate",
	KindTriggerDrop:      "triggerDrop",
	KindTriggerChange:    "triggerChange",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Column attribute names used as the last path segment of column changes.
const (
	AttrDataType = "dataType"
	AttrDefault  = "defaultValue"
	AttrNullable = "isNullable"
	AttrIdentity = "identity"
)

type objectKinds struct{ create, drop, change Kind }

var objectCategories = map[string]objectKinds{
	snapshot.CategoryPrimaryKey: {KindPrimaryKeyCreate, KindPrimaryKeyDrop, KindPrimaryKeyChange},
	snapshot.CategoryUnique:     {KindUniqueCreate, KindUniqueDrop, KindUniqueChange},
	snapshot.CategoryCheck:      {KindCheckCreate, KindCheckDrop, KindCheckChange},
	snapshot.CategoryForeignKey: {KindForeignKeyCreate, KindForeignKeyDrop, KindForeignKeyChange},
	snapshot.CategoryIndex:      {KindIndexCreate, KindIndexDrop, KindIndexChange},
	snapshot.CategoryTrigger:    {KindTriggerCreate, KindTriggerDrop, KindTriggerChange},
}

var columnAttrs = map[string]Kind{
	AttrDataType: KindColumnDataType,
	AttrDefault:  KindColumnDefault,
	AttrNullable: KindColumnNullable,
	AttrIdentity: KindColumnIdentity,
}

// Classify maps a path shape and change type to a Kind. Shapes it does not
// recognize map to KindUnknown.
func Classify(path []string, typ Type) Kind {
	if len(path) == 0 {
		return KindUnknown
	}

	pick := func(create, drop, change Kind) Kind {
		switch typ {
		case Create:
			return create
		case Remove:
			return drop
		case Change:
			return change
		}
		return KindUnknown
	}

	switch category := path[0]; category {
	case snapshot.CategorySchema:
		if len(path) == 2 {
			return pick(KindSchemaCreate, KindSchemaDrop, KindUnknown)
		}
	case snapshot.CategoryExtension:
		if len(path) == 2 {
			return pick(KindExtensionCreate, KindExtensionDrop, KindUnknown)
		}
	case snapshot.CategoryEnum:
		if len(path) == 2 {
			return pick(KindEnumCreate, KindEnumDrop, KindEnumChange)
		}
	case snapshot.CategoryTable:
		switch len(path) {
		case 2:
			return pick(KindTableCreate, KindTableDrop, KindUnknown)
		case 3:
			return pick(KindColumnCreate, KindColumnDrop, KindUnknown)
		case 4:
			if typ == Change {
				if k, ok := columnAttrs[path[3]]; ok {
					return k
				}
			}
		}
	default:
		if kinds, ok := objectCategories[category]; ok && len(path) == 3 {
			return pick(kinds.create, kinds.drop, kinds.change)
		}
	}
	return KindUnknown
}
