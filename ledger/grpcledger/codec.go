package grpcledger

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/protobuf/types/known/structpb"

	"xdao.co/taskledger/ledger"
)

func stateToStruct(st ledger.TxState) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"status": string(st.Status),
		"block":  strconv.FormatUint(st.Block, 10),
		"reason": st.Reason,
	})
}

func stateFromStruct(s *structpb.Struct) (ledger.TxState, error) {
	f := s.GetFields()
	block, err := uintField(f, "block")
	if err != nil {
		return ledger.TxState{}, err
	}
	return ledger.TxState{
		Status: ledger.TxStatus(f["status"].GetStringValue()),
		Block:  block,
		Reason: f["reason"].GetStringValue(),
	}, nil
}

func roleToStruct(d ledger.RoleDetails) (*structpb.Struct, error) {
	members := make([]any, 0, len(d.Members))
	for _, m := range d.Members {
		members = append(members, m.Hex())
	}
	return structpb.NewStruct(map[string]any{
		"roleId":      d.RoleID.Hex(),
		"expiration":  strconv.FormatInt(d.Expiration, 10),
		"description": d.Description.Hex(),
		"members":     members,
	})
}

func roleFromStruct(s *structpb.Struct) (ledger.RoleDetails, error) {
	f := s.GetFields()
	var d ledger.RoleDetails
	if err := d.RoleID.UnmarshalText([]byte(f["roleId"].GetStringValue())); err != nil {
		return d, fmt.Errorf("roleId: %w", err)
	}
	if err := d.Description.UnmarshalText([]byte(f["description"].GetStringValue())); err != nil {
		return d, fmt.Errorf("description: %w", err)
	}
	exp, err := strconv.ParseInt(f["expiration"].GetStringValue(), 10, 64)
	if err != nil {
		return d, fmt.Errorf("expiration: %w", err)
	}
	d.Expiration = exp
	for _, v := range f["members"].GetListValue().GetValues() {
		a := v.GetStringValue()
		if !common.IsHexAddress(a) {
			return d, fmt.Errorf("member %q: %w", a, ledger.ErrInvalidAddress)
		}
		d.Members = append(d.Members, common.HexToAddress(a))
	}
	return d, nil
}

func taskToStruct(t ledger.TaskRecord) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"index":     strconv.FormatUint(t.Index, 10),
		"dataId":    t.DataID.Hex(),
		"inputCid":  t.InputCID,
		"resultCid": t.ResultCID,
		"completed": t.Completed,
		"submitter": t.Submitter.Hex(),
	})
}

func taskFromStruct(s *structpb.Struct) (ledger.TaskRecord, error) {
	f := s.GetFields()
	var t ledger.TaskRecord
	idx, err := uintField(f, "index")
	if err != nil {
		return t, err
	}
	t.Index = idx
	if err := t.DataID.UnmarshalText([]byte(f["dataId"].GetStringValue())); err != nil {
		return t, fmt.Errorf("dataId: %w", err)
	}
	t.InputCID = f["inputCid"].GetStringValue()
	t.ResultCID = f["resultCid"].GetStringValue()
	t.Completed = f["completed"].GetBoolValue()
	t.Submitter = common.HexToAddress(f["submitter"].GetStringValue())
	return t, nil
}

func uintField(f map[string]*structpb.Value, name string) (uint64, error) {
	v, err := strconv.ParseUint(f[name].GetStringValue(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
