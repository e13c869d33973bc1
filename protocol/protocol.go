// Package protocol is the JSON request/response format spoken on the
// flowcamd control socket. Each message is one JSON document.
package protocol

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

type Action string

const (
	ActionStatus Action = "STATUS"
)

type Req struct {
	Action Action            `json:"action"`
	Params map[string]string `json:"params,omitempty"`
}

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

type Res struct {
	Status Status            `json:"status"`
	Error  string            `json:"error,omitempty"`
	Extras map[string]string `json:"extras,omitempty"`
}

// Err returns the remote error of a failed response.
func (r *Res) Err() error {
	if r.Status == StatusSuccess {
		return nil
	}
	if r.Error == "" {
		return errors.Errorf("remote status %s", r.Status)
	}
	return errors.New(r.Error)
}

// StatusReport is the payload of a STATUS response.
type StatusReport struct {
	NodeID        string
	Backend       string
	State         string
	Tensor        string
	Frames        uint64
	CaptureErrors uint64
	EmitErrors    uint64
	Tensors       uint64
}

func (s *StatusReport) extras() map[string]string {
	return map[string]string{
		"node_id":        s.NodeID,
		"backend":        s.Backend,
		"state":          s.State,
		"tensor":         s.Tensor,
		"frames":         strconv.FormatUint(s.Frames, 10),
		"capture_errors": strconv.FormatUint(s.CaptureErrors, 10),
		"emit_errors":    strconv.FormatUint(s.EmitErrors, 10),
		"tensors":        strconv.FormatUint(s.Tensors, 10),
	}
}

// ToStatusReport decodes the extras of a STATUS response.
func ToStatusReport(res *Res) (*StatusReport, error) {
	if err := res.Err(); err != nil {
		return nil, err
	}
	e := res.Extras
	s := &StatusReport{
		NodeID:  e["node_id"],
		Backend: e["backend"],
		State:   e["state"],
		Tensor:  e["tensor"],
	}
	for key, dst := range map[string]*uint64{
		"frames":         &s.Frames,
		"capture_errors": &s.CaptureErrors,
		"emit_errors":    &s.EmitErrors,
		"tensors":        &s.Tensors,
	} {
		v, err := strconv.ParseUint(e[key], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "status field %s", key)
		}
		*dst = v
	}
	return s, nil
}

func ReadReq(r io.Reader) (*Req, error) {
	var req Req
	err := json.NewDecoder(r).Decode(&req)
	return &req, err
}

func ReadRes(r io.Reader) (*Res, error) {
	var res Res
	err := json.NewDecoder(r).Decode(&res)
	return &res, err
}

func WriteStatusReq(w io.Writer) error {
	return json.NewEncoder(w).Encode(&Req{Action: ActionStatus})
}

func WriteStatusRes(w io.Writer, s *StatusReport) error {
	return WriteSuccessRes(w, s.extras())
}

func WriteSuccessRes(w io.Writer, extras map[string]string) error {
	res := Res{
		Status: StatusSuccess,
		Extras: extras,
	}
	return json.NewEncoder(w).Encode(&res)
}

func WriteErrorRes(w io.Writer, err error) error {
	res := Res{
		Status: StatusError,
		Error:  err.Error(),
	}
	return json.NewEncoder(w).Encode(&res)
}
