// Package requestlogic provides the public API for embedding the request
// pipeline. This is the stable API for external consumers.
package requestlogic

import (
	"github.com/tjfontaine/polyglot-request-logic/internal/core/domain"
	"github.com/tjfontaine/polyglot-request-logic/internal/core/ports"
	"github.com/tjfontaine/polyglot-request-logic/internal/logic"
	"github.com/tjfontaine/polyglot-request-logic/internal/runtime"
)

// Service runs the request pipeline behind its HTTP API.
// See internal/runtime.Service for full documentation.
type Service = runtime.Service

// Option is a functional option for configuring a Service.
type Option = runtime.Option

// Logic is the pipeline itself, for callers that drive it without the API.
type Logic = logic.Logic

// LogicOption configures a Logic.
type LogicOption = logic.Option

// Pipeline data types.
type (
	Request          = domain.Request
	Result           = domain.Result
	Response         = domain.Response
	Completion       = domain.Completion
	Snapshot         = domain.Snapshot
	Certificate      = domain.Certificate
	AuthConfig       = domain.AuthConfig
	BasicAuth        = domain.BasicAuth
	OAuth2Auth       = domain.OAuth2Auth
	ClientCertAuth   = domain.ClientCertificateAuth
	RequestActions   = domain.RequestActions
	Transport        = ports.Transport
	ResultSink       = ports.ResultSink
	PreRequestHook   = ports.PreRequestHook
	ResponseHook     = ports.ResponseHook
	StorageProvider  = ports.StorageProvider
	ConfigProvider   = ports.ConfigProvider
	VariableListener = ports.VariableListener
)

// New creates a new Service with the given options.
// Example:
//
//	svc, err := requestlogic.New(
//	    requestlogic.WithFileConfig("config.yaml"),
//	    requestlogic.WithSQLite("./data/request-logic.db"),
//	)
var New = runtime.New

// Service options
var (
	// Config sources
	WithFileConfig     = runtime.WithFileConfig
	WithConfigProvider = runtime.WithConfigProvider

	// Storage
	WithMemoryStorage   = runtime.WithMemoryStorage
	WithSQLite          = runtime.WithSQLite
	WithPostgres        = runtime.WithPostgres
	WithStorageProvider = runtime.WithStorageProvider

	// Advanced options
	WithListener = runtime.WithListener
	WithLogger   = runtime.WithLogger
)

// NewLogic creates a standalone pipeline.
var NewLogic = logic.New

// Pipeline options
var (
	WithTransport         = logic.WithTransport
	WithEvaluator         = logic.WithEvaluator
	WithHooks             = logic.WithHooks
	WithResultSink        = logic.WithResultSink
	WithHistory           = logic.WithHistory
	WithVariableListener  = logic.WithVariableListener
	WithCertificateStore  = logic.WithCertificateStore
	WithHandlersTimeout   = logic.WithHandlersTimeout
	WithVariablesDisabled = logic.WithVariablesDisabled
	WithLogicLogger       = logic.WithLogger
)
