package util

import "github.com/shopspring/decimal"

func DecimalPtr(v decimal.Decimal) *decimal.Decimal { return &v }
