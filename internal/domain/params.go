package domain

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// Params is the free-form payload attached to a task. Stores keep it as serialized JSON
// and unknown keys are carried through untouched.
type Params map[string]any

// Marshal serializes p for storage. A nil Params is stored as an empty object.
func (p Params) Marshal() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p)
}

// UnmarshalParams decodes a stored params blob.
func UnmarshalParams(data []byte) (Params, error) {
	if len(data) == 0 {
		return Params{}, nil
	}
	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if p == nil {
		p = Params{}
	}
	return p, nil
}

const (
	ParamHTTPMethod         = "http_method"
	ParamHTTPPort           = "http_port"
	ParamNoCheckCertificate = "no_check_certificate"
	ParamNoProxy            = "no_proxy"

	// nestedParamsKey holds connection settings when callers wrap them, e.g. {"params": {...}}.
	nestedParamsKey = "params"
)

// RemoteTransferParams are the connection settings a task carries when it tracks a
// transfer to or from a peer server.
type RemoteTransferParams struct {
	HTTPMethod         string `json:"http_method,omitempty" validate:"omitempty,oneof=http https"`
	HTTPPort           string `json:"http_port,omitempty" validate:"omitempty,tcp_port"`
	NoCheckCertificate bool   `json:"no_check_certificate"`
	NoProxy            bool   `json:"no_proxy"`
}

// Scheme returns the configured scheme, defaulting to http.
func (r RemoteTransferParams) Scheme() string {
	if r.HTTPMethod == "" {
		return "http"
	}
	return r.HTTPMethod
}

// HasRemoteTransfer reports whether p carries any connection setting.
func (p Params) HasRemoteTransfer() bool {
	src := p.transferSource()
	for _, k := range []string{ParamHTTPMethod, ParamHTTPPort, ParamNoCheckCertificate, ParamNoProxy} {
		if _, ok := src[k]; ok {
			return true
		}
	}
	return false
}

// RemoteTransfer extracts the connection settings from p. Ports may be numbers or
// strings and flags may be booleans, numbers or "0"/"1" strings.
func (p Params) RemoteTransfer() (RemoteTransferParams, error) {
	var out RemoteTransferParams
	src := p.transferSource()

	if v, ok := src[ParamHTTPMethod]; ok && !isBlank(v) {
		s, err := cast.ToStringE(v)
		if err != nil {
			return out, fmt.Errorf("%s: %w", ParamHTTPMethod, err)
		}
		out.HTTPMethod = s
	}
	if v, ok := src[ParamHTTPPort]; ok && !isBlank(v) {
		s, err := cast.ToStringE(v)
		if err != nil {
			return out, fmt.Errorf("%s: %w", ParamHTTPPort, err)
		}
		out.HTTPPort = s
	}
	if v, ok := src[ParamNoCheckCertificate]; ok && !isBlank(v) {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return out, fmt.Errorf("%s: %w", ParamNoCheckCertificate, err)
		}
		out.NoCheckCertificate = b
	}
	if v, ok := src[ParamNoProxy]; ok && !isBlank(v) {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return out, fmt.Errorf("%s: %w", ParamNoProxy, err)
		}
		out.NoProxy = b
	}
	return out, nil
}

func (p Params) transferSource() map[string]any {
	switch nested := p[nestedParamsKey].(type) {
	case map[string]any:
		return nested
	case Params:
		return nested
	}
	return p
}

// isBlank treats a missing value and an empty string as "not set".
func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
