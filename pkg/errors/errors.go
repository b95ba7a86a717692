// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Atrium Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error. The last dot
// segment is the failure reason and drives classification and HTTP
// status mapping.
type Code string

const (
	CodeStoreEntityNotFound     Code = "store.entity.get.not_found"
	CodeStoreInvalidInput       Code = "store.invalid_input"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodePluginManifestParseInvalid    Code = "plugin.manifest.parse.invalid_format"
	CodePluginManifestValidateInvalid Code = "plugin.manifest.validate.invalid"
	CodePluginRegisterConflict        Code = "plugin.register.conflict"
	CodePluginNotFound                Code = "plugin.not_found"
	CodePluginStatusTransitionInvalid Code = "plugin.status.transition.invalid"
	CodePluginModuleNotFound          Code = "plugin.module.not_found"
	CodePluginModuleInvalid           Code = "plugin.module.invalid"
	CodePluginDiscoveryFailure        Code = "plugin.discovery.failure"

	CodeSecurityCapabilityInvalid Code = "security.capability.invalid"
	CodeSecurityCapabilityDenied  Code = "security.capability.denied"
	CodeSecurityAuditFailure      Code = "security.audit.failure"

	CodeHookNameInvalid     Code = "hook.name.invalid"
	CodeHookHandlerInvalid  Code = "hook.handler.invalid"
	CodeHookPrefixForbidden Code = "hook.owner.prefix.forbidden"
	CodeHookDispatchFailure Code = "hook.dispatch.failure"
	CodeHookFilterFailure   Code = "hook.filter.failure"

	CodeNavDesignInvalid  Code = "nav.design.validate.invalid"
	CodeNavDuplicateID    Code = "nav.compose.duplicate_id"
	CodeNavComposeFailure Code = "nav.compose.failure"

	CodeBootCardinalityInvalid Code = "boot.cardinality.invalid"
	CodeBootDesignInvalid      Code = "boot.design.validate.invalid"
	CodeBootSchemaIncompatible Code = "boot.schema.incompatible"
	CodeBootPhaseFailure       Code = "boot.phase.failure"

	CodeResourceProviderInvalid  Code = "resource.provider.invalid"
	CodeResourceProviderConflict Code = "resource.provider.conflict"
	CodeResourceProviderNotFound Code = "resource.provider.not_found"
	CodeResourceResolveFailure   Code = "resource.resolve.failure"

	CodeAuthzNamespaceConflict Code = "authz.namespace.conflict"
	CodeAuthzResolverInvalid   Code = "authz.resolver.invalid"
	CodeAuthzNamespaceNotFound Code = "authz.namespace.not_found"
	CodeAuthzResolveFailure    Code = "authz.resolve.failure"

	CodeFacadeScopeStale          Code = "facade.scope.stale"
	CodeFacadeCapabilityDenied    Code = "facade.capability.denied"
	CodeFacadeQueryInvalid        Code = "facade.query.invalid_input"
	CodeFacadeNamespaceForbidden  Code = "facade.namespace.forbidden"
	CodeFacadeHookUndeclared      Code = "facade.hook.undeclared.forbidden"
	CodeFacadePermissionDenied    Code = "facade.permission.denied"
	CodeFacadeNotificationInvalid Code = "facade.notification.invalid_input"
	CodeFacadeRecipientForbidden  Code = "facade.recipient.forbidden"

	CodeRouteRegisterInvalid Code = "route.register.invalid_input"
	CodeRouteFeatureDenied   Code = "route.feature.denied"
	CodeRoutePluginForbidden Code = "route.plugin.forbidden"

	CodeServerRequestInvalid   Code = "server.request.invalid"
	CodeServerAuthUnauthorized Code = "server.auth.unauthorized"
	CodeServerAuthForbidden    Code = "server.auth.forbidden"
	CodeServerTenantNotFound   Code = "server.tenant.not_found"
	CodeServerInternalFailure  Code = "server.internal.failure"
	CodeServerConfigInvalid    Code = "server.config.invalid"
	CodeServerStartFailure     Code = "server.start.failure"
	CodeServerShutdownFailure  Code = "server.shutdown.failure"

	CodeCLISetupFailure   Code = "cli.setup.failure"
	CodeCLIInputInvalid   Code = "cli.input.invalid"
	CodeCLIHostNotRunning Code = "cli.host.not_running"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field makes an Attr; the typed helpers below cover the recurring keys.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldTenantID(value string) Attr {
	return Field("tenant_id", value)
}

func FieldUserID(value string) Attr {
	return Field("user_id", value)
}

func FieldPlugin(value string) Attr {
	return Field("plugin", value)
}

func FieldHook(value string) Attr {
	return Field("hook", value)
}

func FieldCapability(value string) Attr {
	return Field("capability", value)
}

func FieldPhase(value string) Attr {
	return Field("phase", value)
}

// New builds a coded error with optional structured fields.
func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(kvPairs(fields)...).New(msg)
}

// Errorf builds a coded error with fmt-style formatting. %w wraps.
func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

// Wrap annotates err with a code, message, and optional fields. A nil err
// stays nil.
func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(kvPairs(fields)...).Wrapf(err, "%s", msg)
}

// Wrapf is Wrap with fmt-style formatting.
func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain without changing
// its code. A plain uncoded error is tagged CodeServerInternalFailure.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(kvPairs(fields)...).Wrap(err)
}

// CodeOf extracts the code from an error chain. Wrapping preserves the
// deepest code, so layered wraps keep reporting the original failure.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	switch c := oopsErr.Code().(type) {
	case Code:
		return c
	case string:
		return Code(c)
	default:
		return Code(fmt.Sprintf("%v", c))
	}
}

// FieldsOf returns the structured fields accumulated along the chain.
func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

// HasCode reports whether the chain's code equals code.
func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reasonOf(err) == "not_found"
}

func IsConflict(err error) bool {
	r := reasonOf(err)
	return r == "conflict" || r == "duplicate_id"
}

func IsInvalidInput(err error) bool {
	switch reasonOf(err) {
	case "invalid", "invalid_input", "invalid_value", "invalid_format":
		return true
	}
	return false
}

func IsUnauthorized(err error) bool {
	switch reasonOf(err) {
	case "unauthorized", "forbidden", "denied":
		return true
	}
	return false
}

func IsStaleScope(err error) bool {
	return reasonOf(err) == "stale"
}

// HTTPStatus maps an error to the response status its reason implies.
// Anything unclassified is a 500.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUnauthorized(err):
		if reasonOf(err) == "unauthorized" {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Join combines errors into one chain tagged CodeServerInternalFailure.
func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func kvPairs(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		if f.Key == "" {
			continue
		}
		pairs = append(pairs, f.Key, f.Value)
	}
	return pairs
}

// reasonOf returns the last dot segment of the chain's code.
func reasonOf(err error) string {
	raw := string(CodeOf(err))
	if i := strings.LastIndexByte(raw, '.'); i >= 0 && i < len(raw)-1 {
		return raw[i+1:]
	}
	return raw
}
