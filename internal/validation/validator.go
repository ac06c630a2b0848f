package validation

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"github.com/veranemoloko/impex-tasks/internal/domain"
	errpkg "github.com/veranemoloko/impex-tasks/internal/errors"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("tcp_port", validateTCPPort)
	_ = validate.RegisterValidation("server_address", validateServerAddress)
}

// Validator returns the shared validator with the custom tags registered.
func Validator() *validator.Validate {
	return validate
}

// Struct validates a request body.
func Struct(v any) error {
	return validate.Struct(v)
}

// ValidateRemoteTransfer checks the connection settings carried in task params.
// Failures wrap ErrInvalidParams.
func ValidateRemoteTransfer(p domain.RemoteTransferParams) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", errpkg.ErrInvalidParams, err)
	}
	return nil
}

func validateTCPPort(fl validator.FieldLevel) bool {
	return isTCPPort(fl.Field().Interface())
}

// isTCPPort accepts canonical decimal ports only. The value is written into URLs as is,
// so "0x50" or "080" must not pass.
func isTCPPort(v any) bool {
	s, err := cast.ToStringE(v)
	if err != nil || s == "" || s[0] == '0' {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	port, err := strconv.Atoi(s)
	return err == nil && port <= 65535
}

// validateServerAddress accepts a bare host, host:port, or an http(s) URL without a path.
func validateServerAddress(fl validator.FieldLevel) bool {
	addr := strings.TrimSpace(fl.Field().String())
	if addr == "" || strings.ContainsAny(addr, " \t\r\n") {
		return false
	}

	raw := addr
	if !strings.Contains(addr, "://") {
		raw = "http://" + addr
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	if u.Host == "" || u.Hostname() == "" {
		return false
	}

	if u.Path != "" && u.Path != "/" {
		return false
	}

	if port := u.Port(); port != "" {
		if !isTCPPort(port) {
			return false
		}
	}

	if strings.Contains(u.Hostname(), ":") && net.ParseIP(u.Hostname()) == nil {
		return false
	}

	return true
}
