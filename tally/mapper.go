package tally

import (
	"fmt"
	"strings"

	"bitbucket.org/synergymed/hims_backend/models"
)

// parentTypeTable maps Tally's standard ledger groups to the internal
// account classification. Lookups are case-insensitive on the trimmed name.
var parentTypeTable = map[string]models.AccountMainType{
	"current assets":           models.AccountMainTypeAsset,
	"fixed assets":             models.AccountMainTypeAsset,
	"bank accounts":            models.AccountMainTypeAsset,
	"bank od a/c":              models.AccountMainTypeAsset,
	"cash-in-hand":             models.AccountMainTypeAsset,
	"deposits (asset)":         models.AccountMainTypeAsset,
	"loans & advances (asset)": models.AccountMainTypeAsset,
	"stock-in-hand":            models.AccountMainTypeAsset,
	"sundry debtors":           models.AccountMainTypeAsset,
	"investments":              models.AccountMainTypeAsset,
	"misc. expenses (asset)":   models.AccountMainTypeAsset,

	"current liabilities": models.AccountMainTypeLiability,
	"sundry creditors":    models.AccountMainTypeLiability,
	"duties & taxes":      models.AccountMainTypeLiability,
	"provisions":          models.AccountMainTypeLiability,
	"loans (liability)":   models.AccountMainTypeLiability,
	"secured loans":       models.AccountMainTypeLiability,
	"unsecured loans":     models.AccountMainTypeLiability,
	"branch / divisions":  models.AccountMainTypeLiability,
	"suspense a/c":        models.AccountMainTypeLiability,

	"capital account":    models.AccountMainTypeEquity,
	"reserves & surplus": models.AccountMainTypeEquity,

	"sales accounts":   models.AccountMainTypeIncome,
	"direct incomes":   models.AccountMainTypeIncome,
	"indirect incomes": models.AccountMainTypeIncome,

	"purchase accounts": models.AccountMainTypeExpense,
	"direct expenses":   models.AccountMainTypeExpense,
	"indirect expenses": models.AccountMainTypeExpense,
}

// glParentDigits gives each classification its leading GL-code digit.
var glParentDigits = map[models.AccountMainType]byte{
	models.AccountMainTypeAsset:     '1',
	models.AccountMainTypeLiability: '2',
	models.AccountMainTypeEquity:    '3',
	models.AccountMainTypeIncome:    '4',
	models.AccountMainTypeExpense:   '5',
}

// MapParentToAccountType classifies a ledger by its Tally parent group. The
// second return is false when the group is unknown; callers fall back to
// Asset but must log the miss so the table can be extended.
func MapParentToAccountType(parent string) (models.AccountMainType, bool) {
	if mainType, ok := parentTypeTable[strings.ToLower(strings.TrimSpace(parent))]; ok {
		return mainType, true
	}
	return models.AccountMainTypeAsset, false
}

// GenerateGLCode derives a deterministic 5-digit code: the classification
// digit of the parent group followed by a 4-digit hash of the ledger name.
// Collisions are resolved at reservation time, not here.
func GenerateGLCode(name, parent string) string {
	mainType, _ := MapParentToAccountType(parent)
	return GLCodeForType(mainType, name)
}

// GLCodeForType is the code generator for an already-classified ledger,
// used when the type came from the group tree rather than the direct parent.
func GLCodeForType(mainType models.AccountMainType, name string) string {
	digit, ok := glParentDigits[mainType]
	if !ok {
		digit = '0'
	}

	var h int32
	for _, ch := range name {
		h = h*31 + ch
	}
	// Mask instead of negating so MinInt32 cannot survive as a negative.
	return fmt.Sprintf("%c%04d", digit, (h&0x7fffffff)%10000)
}
