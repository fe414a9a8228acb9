package model

import "errors"

// TaskRow is the JSON shape of one task in listings.
type TaskRow struct {
	Index      uint64 `json:"index"`
	DataID     string `json:"dataId"`
	Parameters string `json:"parameters,omitempty"`
	InputCID   string `json:"inputCid,omitempty"`
	ResultCID  string `json:"resultCid,omitempty"`
	Completed  bool   `json:"completed"`
	ResultURL  string `json:"resultUrl,omitempty"`
}

// RoleRow is the JSON shape of one role assignment.
//
// Account is "N/A" for a role with no bound member. Expiration is
// "Permanent" or a GMT wall-clock time.
type RoleRow struct {
	RoleID      string `json:"roleId"`
	Account     string `json:"account"`
	Description string `json:"description"`
	Expiration  string `json:"expiration"`
	Expired     bool   `json:"expired"`
}

// ReceiptRow is the JSON shape of a confirmed ledger write.
type ReceiptRow struct {
	TxHash string `json:"txHash"`
	Block  uint64 `json:"block"`
	Op     string `json:"op"`
	CID    string `json:"cid,omitempty"`
}

// ErrorRow is the JSON shape of a failed operation.
type ErrorRow struct {
	Kind     Kind   `json:"kind"`
	Stage    Stage  `json:"stage,omitempty"`
	Message  string `json:"message"`
	CID      string `json:"cid,omitempty"`
	Orphaned bool   `json:"orphaned,omitempty"`
}

// ErrorRowFor projects err into an ErrorRow. Unstructured errors get an
// empty Kind.
func ErrorRowFor(err error) ErrorRow {
	if err == nil {
		return ErrorRow{}
	}
	row := ErrorRow{Message: err.Error()}
	var e *Error
	if errors.As(err, &e) {
		row.Kind = e.Kind
		row.Stage = e.Stage
		row.CID = e.CID
		row.Orphaned = e.Orphaned()
	}
	return row
}
