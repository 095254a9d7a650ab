// Command nodedbg is the stdio front end of the debug-adapter bridge:
// it decodes one JSON-RPC 2.0 request per line, dispatches it to the
// tool surface, and encodes the response, in the request/response loop
// shape of an MCP-style tool server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmc/nodedbg/internal/session"
	"github.com/tmc/nodedbg/internal/tools"
)

const jsonrpcVersion = "2.0"

type requestID interface{}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      requestID       `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      requestID   `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// toolFunc decodes request params and invokes the corresponding
// Dispatcher method.
type toolFunc func(ctx context.Context, d *tools.Dispatcher, params json.RawMessage) (tools.Response, error)

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

var toolTable = map[string]toolFunc{
	"start": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.StartParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.Start(ctx, p), nil
	},
	"stop": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		return d.Stop(ctx), nil
	},
	"resume_execution": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.ExecParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.ResumeExecution(ctx, p), nil
	},
	"step_over": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.ExecParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.StepOver(ctx, p), nil
	},
	"step_into": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.ExecParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.StepInto(ctx, p), nil
	},
	"step_out": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.ExecParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.StepOut(ctx, p), nil
	},
	"continue_to_location": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.ContinueToLocationParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.ContinueToLocation(ctx, p), nil
	},
	"restart_frame": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.RestartFrameParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.RestartFrame(ctx, p), nil
	},
	"set_breakpoint": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.SetBreakpointParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.SetBreakpoint(ctx, p), nil
	},
	"set_breakpoint_condition": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.SetBreakpointConditionParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.SetBreakpointCondition(ctx, p), nil
	},
	"add_logpoint": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.AddLogpointParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.AddLogpoint(ctx, p), nil
	},
	"set_exception_breakpoints": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.SetExceptionBreakpointsParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.SetExceptionBreakpoints(ctx, p), nil
	},
	"blackbox_scripts": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.BlackboxScriptsParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.BlackboxScripts(ctx, p), nil
	},
	"get_pause_info": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.GetPauseInfoParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.GetPauseInfo(ctx, p), nil
	},
	"list_call_stack": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.ListCallStackParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.ListCallStack(ctx, p), nil
	},
	"inspect_scopes": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.InspectScopesParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.InspectScopes(ctx, p), nil
	},
	"evaluate_expression": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.EvaluateExpressionParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.EvaluateExpression(ctx, p), nil
	},
	"get_object_properties": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.GetObjectPropertiesParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.GetObjectProperties(ctx, p), nil
	},
	"list_scripts": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		return d.ListScripts(ctx), nil
	},
	"get_script_source": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		var p tools.GetScriptSourceParams
		if err := decodeParams(raw, &p); err != nil {
			return tools.Response{}, err
		}
		return d.GetScriptSource(ctx, p), nil
	},
	"read_console": func(ctx context.Context, d *tools.Dispatcher, raw json.RawMessage) (tools.Response, error) {
		return d.ReadConsole(ctx), nil
	},
}

// bridge is the stdio JSON-RPC 2.0 server: a decode-dispatch-encode
// loop narrowed to exactly this bridge's tool surface.
type bridge struct {
	dispatcher *tools.Dispatcher
	logger     *log.Logger
}

func (b *bridge) run(ctx context.Context, in io.Reader, out io.Writer) error {
	decoder := json.NewDecoder(in)
	encoder := json.NewEncoder(out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var req rpcRequest
		if err := decoder.Decode(&req); err != nil {
			if err == io.EOF {
				return nil
			}
			b.logger.Printf("decode request: %v", err)
			continue
		}

		resp := b.handle(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			b.logger.Printf("encode response: %v", err)
		}
	}
}

func (b *bridge) handle(ctx context.Context, req rpcRequest) rpcResponse {
	fn, ok := toolTable[req.Method]
	if !ok {
		return rpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Error: &rpcError{Code: -32601, Message: "method not found"}}
	}

	result, err := fn(ctx, b.dispatcher, req.Params)
	if err != nil {
		return rpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Error: &rpcError{Code: -32602, Message: fmt.Sprintf("invalid params: %v", err)}}
	}
	return rpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID, Result: result}
}

func main() {
	runtimePath := flag.String("runtime-path", "", "path to the target runtime executable (default: auto-discover)")
	attachTimeout := flag.Duration("attach-timeout", 15*time.Second, "how long to wait for the target's initial pause")
	consoleBufferCap := flag.Int("console-buffer", 1000, "max buffered console entries")
	transcript := flag.String("transcript", "", "optional path to a session transcript log")
	flag.Parse()

	opts := []session.Option{
		session.WithAttachTimeout(*attachTimeout),
		session.WithConsoleBufferCap(*consoleBufferCap),
	}
	if *runtimePath != "" {
		opts = append(opts, session.WithRuntimePath(*runtimePath))
	}
	if *transcript != "" {
		opts = append(opts, session.WithTranscript(*transcript))
	}

	dispatcher := tools.New(opts...)
	b := &bridge{dispatcher: dispatcher, logger: log.New(os.Stderr, "[nodedbg] ", log.LstdFlags)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		b.dispatcher.Stop(ctx)
		cancel()
		os.Exit(0)
	}()

	if err := b.run(ctx, os.Stdin, os.Stdout); err != nil && err != context.Canceled {
		b.logger.Printf("server exited: %v", err)
		os.Exit(1)
	}
}
