package core

import (
	"fmt"
	"strconv"
	"strings"
)

// Field widths of the encoded line. Every field is fixed width and zero
// padded on the left; oversized values are rejected, never truncated.
const (
	SerialWidth  = 9
	RoutingWidth = 9
	AccountWidth = 12
)

// FormattedUnit is the machine-readable identity of one printed instrument.
type FormattedUnit struct {
	FormattedSerial string `json:"formatted_serial"`
	EncodedLine     string `json:"encoded_line"`
}

// UnitRecord is one check face handed to the rendering layer.
type UnitRecord struct {
	UnitIndex       int    `json:"unit_index"`
	BookNumber      int64  `json:"book_number"`
	Serial          int64  `json:"serial"`
	FormattedSerial string `json:"formatted_serial"`
	EncodedLine     string `json:"encoded_line"`
}

// FormatUnit builds the encoded line of a single instrument.
//
// The line is the concatenation, in this exact order, of:
//
//	TYPE (2) | ROUTING (9) | ACCOUNT (12) | SERIAL (9)
//
// Reading hardware depends on this order and these widths.
func FormatUnit(serial int64, routingID, accountID string, instrument InstrumentType) (FormattedUnit, error) {
	code := instrument.Code()
	if len(code) != 2 {
		return FormattedUnit{}, validationf("unknown instrument type %q", instrument)
	}
	if serial < 1 || serial > MaxSerial {
		return FormattedUnit{}, validationf("serial %d is outside the printable range 1-%d", serial, MaxSerial)
	}
	routing, err := padDigits("routing number", routingID, RoutingWidth)
	if err != nil {
		return FormattedUnit{}, err
	}
	account, err := padDigits("account", accountID, AccountWidth)
	if err != nil {
		return FormattedUnit{}, err
	}

	formatted := fmt.Sprintf("%0*d", SerialWidth, serial)
	var b strings.Builder
	b.Grow(len(code) + RoutingWidth + AccountWidth + SerialWidth)
	b.WriteString(code)
	b.WriteString(routing)
	b.WriteString(account)
	b.WriteString(formatted)

	return FormattedUnit{FormattedSerial: formatted, EncodedLine: b.String()}, nil
}

func padDigits(field, value string, width int) (string, error) {
	if value == "" {
		return "", validationf("%s is required for the encoded line", field)
	}
	if len(value) > width {
		return "", validationf("%s %q is longer than %d digits", field, value, width)
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return "", validationf("%s %q must contain digits only", field, value)
		}
	}
	return strings.Repeat("0", width-len(value)) + value, nil
}

// ExpandEntry formats every serial of a committed entry in ascending order.
// UnitIndex is 1-based within the batch.
func ExpandEntry(entry LedgerEntry, branch Branch) ([]UnitRecord, error) {
	if err := entry.Range().Validate(); err != nil {
		return nil, err
	}
	if n := entry.Range().Len(); n > HardMaxBatchUnits {
		return nil, validationf("entry %d spans %d units; at most %d can be expanded", entry.ID, n, HardMaxBatchUnits)
	}
	perBook := entry.UnitsPerBook
	if perBook < 1 {
		perBook = entry.TotalUnits
	}

	records := make([]UnitRecord, 0, entry.TotalUnits)
	for serial := entry.FirstSerial; serial <= entry.LastSerial; serial++ {
		f, err := FormatUnit(serial, branch.RoutingNumber, entry.AccountRef, entry.InstrumentType)
		if err != nil {
			return nil, fmt.Errorf("failed to format serial %s of entry %d: %w",
				strconv.FormatInt(serial, 10), entry.ID, err)
		}
		idx := serial - entry.FirstSerial
		records = append(records, UnitRecord{
			UnitIndex:       int(idx) + 1,
			BookNumber:      idx/perBook + 1,
			Serial:          serial,
			FormattedSerial: f.FormattedSerial,
			EncodedLine:     f.EncodedLine,
		})
	}
	return records, nil
}
