// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements the vmcp.UpstreamClient interface using the
// mark3labs/mcp-go SDK. It speaks streamable-HTTP and SSE to upstream MCP
// servers, attaches outgoing authentication, and maps transport failures
// onto the gateway's error taxonomy.
package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/virtualmcp/gateway/pkg/logger"
	"github.com/virtualmcp/gateway/pkg/vmcp"
	"github.com/virtualmcp/gateway/pkg/vmcp/auth"
	"github.com/virtualmcp/gateway/pkg/vmcp/conversion"
)

const (
	// maxResponseSize caps HTTP response bodies from upstream MCP servers.
	// The MCP specification defines no size limit; without a cap a single
	// oversized response could exhaust gateway memory during JSON decoding.
	// Applied at the HTTP transport layer, per response.
	maxResponseSize = 100 * 1024 * 1024 // 100 MB

	// defaultUpstreamTimeout bounds calls to upstreams whose connection
	// does not configure its own timeout.
	defaultUpstreamTimeout = 30 * time.Second

	clientName    = "virtualmcp-gateway"
	clientVersion = "0.1.0"
)

// httpUpstreamClient implements vmcp.UpstreamClient over HTTP transports.
type httpUpstreamClient struct {
	// clientFactory creates SDK clients per target. A function field so
	// tests can substitute fakes.
	clientFactory func(ctx context.Context, target *vmcp.ConnectionTarget) (*client.Client, error)

	// authRegistry resolves outgoing authentication strategies.
	authRegistry *auth.Registry
}

// NewHTTPUpstreamClient creates an UpstreamClient supporting the
// streamable-http and sse transports. authRegistry must not be nil; use a
// registry with the unauthenticated strategy to disable authentication.
func NewHTTPUpstreamClient(authRegistry *auth.Registry) (vmcp.UpstreamClient, error) {
	if authRegistry == nil {
		return nil, fmt.Errorf("%w: auth registry cannot be nil", vmcp.ErrInvalidConfig)
	}
	c := &httpUpstreamClient{authRegistry: authRegistry}
	c.clientFactory = c.defaultClientFactory
	return c, nil
}

// roundTripperFunc adapts a function to http.RoundTripper.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// authRoundTripper attaches authentication to outgoing upstream requests.
// The strategy is resolved and validated once at client creation, so the
// request path does no lookups.
type authRoundTripper struct {
	base       http.RoundTripper
	strategy   auth.Strategy
	authConfig map[string]any
	target     *vmcp.ConnectionTarget
}

func (a *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	reqClone := req.Clone(req.Context())
	if err := a.strategy.Authenticate(reqClone.Context(), reqClone, a.authConfig); err != nil {
		return nil, fmt.Errorf("authentication failed for connection %s: %w", a.target.ConnectionID, err)
	}
	return a.base.RoundTrip(reqClone)
}

// resolveAuth resolves and validates the target's authentication strategy.
// Called once per client creation so invalid configurations fail fast.
func (h *httpUpstreamClient) resolveAuth(target *vmcp.ConnectionTarget) (auth.Strategy, map[string]any, error) {
	strategyName, authConfig := auth.ConfigFromConnectionAuth(target.Auth)
	strategy, err := h.authRegistry.Get(strategyName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve authentication for connection %s: %w", target.ConnectionID, err)
	}
	if err := strategy.Validate(authConfig); err != nil {
		return nil, nil, fmt.Errorf("invalid authentication configuration for connection %s: %w", target.ConnectionID, err)
	}
	return strategy, authConfig, nil
}

// defaultClientFactory builds an SDK client for the target's transport with
// an auth and size-limit transport chain underneath.
func (h *httpUpstreamClient) defaultClientFactory(
	ctx context.Context, target *vmcp.ConnectionTarget,
) (*client.Client, error) {
	strategy, authConfig, err := h.resolveAuth(target)
	if err != nil {
		return nil, err
	}

	var baseTransport http.RoundTripper = http.DefaultTransport
	baseTransport = &authRoundTripper{
		base:       baseTransport,
		strategy:   strategy,
		authConfig: authConfig,
		target:     target,
	}

	// Wrap response bodies so JSON decoding never reads more than the cap.
	sizeLimitedTransport := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := baseTransport.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		resp.Body = struct {
			io.Reader
			io.Closer
		}{
			Reader: io.LimitReader(resp.Body, maxResponseSize),
			Closer: resp.Body,
		}
		return resp, nil
	})

	timeout := target.Timeout
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	httpClient := &http.Client{
		Transport: sizeLimitedTransport,
		Timeout:   timeout,
	}

	var c *client.Client
	switch target.TransportType {
	case vmcp.TransportStreamableHTTP:
		c, err = client.NewStreamableHttpClient(
			target.BaseURL,
			transport.WithHTTPTimeout(timeout),
			transport.WithHTTPBasicClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streamable-http client: %w", err)
		}

	case vmcp.TransportSSE:
		c, err = client.NewSSEMCPClient(
			target.BaseURL,
			transport.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create SSE client: %w", err)
		}

	default:
		return nil, fmt.Errorf("%w: %s (supported: %s, %s)",
			vmcp.ErrUnsupportedTransport, target.TransportType,
			vmcp.TransportStreamableHTTP, vmcp.TransportSSE)
	}

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start client connection: %w", err)
	}

	// Initialization is deferred to the caller so ServerCapabilities can be
	// captured and used for conditional capability querying.
	return c, nil
}

// wrapUpstreamError maps an error onto the gateway taxonomy so callers can
// use errors.Is instead of string matching. Typed detection runs first;
// string patterns cover SDK and HTTP library errors that carry no type.
func wrapUpstreamError(err error, connectionID, operation string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: failed to %s for connection %s (timeout): %v",
			vmcp.ErrUpstreamUnreachable, operation, connectionID, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: failed to %s for connection %s: %v",
			vmcp.ErrCancelled, operation, connectionID, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: failed to %s for connection %s (timeout): %v",
			vmcp.ErrUpstreamUnreachable, operation, connectionID, err)
	}
	if vmcp.IsTimeoutError(err) || vmcp.IsConnectionError(err) {
		return fmt.Errorf("%w: failed to %s for connection %s: %v",
			vmcp.ErrUpstreamUnreachable, operation, connectionID, err)
	}
	return fmt.Errorf("%w: failed to %s for connection %s: %v",
		vmcp.ErrUpstreamProtocol, operation, connectionID, err)
}

// initializeClient performs the MCP handshake and returns the server's
// advertised capabilities.
func initializeClient(ctx context.Context, c *client.Client) (*mcp.ServerCapabilities, error) {
	result, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		return nil, err
	}
	return &result.Capabilities, nil
}

// queryTools lists tools when the upstream advertises tool support.
func queryTools(ctx context.Context, c *client.Client, supported bool, connectionID string) (*mcp.ListToolsResult, error) {
	if !supported {
		logger.Debugf("Connection %s does not advertise tools capability, skipping tools query", connectionID)
		return &mcp.ListToolsResult{Tools: []mcp.Tool{}}, nil
	}
	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools from connection %s: %w", connectionID, err)
	}
	return result, nil
}

// queryResources lists resources when the upstream advertises support.
func queryResources(ctx context.Context, c *client.Client, supported bool, connectionID string) (*mcp.ListResourcesResult, error) {
	if !supported {
		logger.Debugf("Connection %s does not advertise resources capability, skipping resources query", connectionID)
		return &mcp.ListResourcesResult{Resources: []mcp.Resource{}}, nil
	}
	result, err := c.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list resources from connection %s: %w", connectionID, err)
	}
	return result, nil
}

// queryPrompts lists prompts when the upstream advertises support.
func queryPrompts(ctx context.Context, c *client.Client, supported bool, connectionID string) (*mcp.ListPromptsResult, error) {
	if !supported {
		logger.Debugf("Connection %s does not advertise prompts capability, skipping prompts query", connectionID)
		return &mcp.ListPromptsResult{Prompts: []mcp.Prompt{}}, nil
	}
	result, err := c.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts from connection %s: %w", connectionID, err)
	}
	return result, nil
}

// probeCapabilityLists queries all three capability lists on a connection
// whose handshake failed. Individual list failures yield empty lists; an
// error is returned only when every list fails, meaning the upstream is not
// answering at all.
func probeCapabilityLists(
	ctx context.Context, c *client.Client, connectionID string,
) (*mcp.ListToolsResult, *mcp.ListResourcesResult, *mcp.ListPromptsResult, error) {
	// The SDK refuses to send requests on a client whose handshake never
	// completed, so the probe wraps the same live transport in a client
	// that assumes the session is established.
	probe := client.NewClient(c.GetTransport(), client.WithSession())

	var errs []error

	toolsResp, err := queryTools(ctx, probe, true, connectionID)
	if err != nil {
		toolsResp = &mcp.ListToolsResult{Tools: []mcp.Tool{}}
		errs = append(errs, err)
	}
	resourcesResp, err := queryResources(ctx, probe, true, connectionID)
	if err != nil {
		resourcesResp = &mcp.ListResourcesResult{Resources: []mcp.Resource{}}
		errs = append(errs, err)
	}
	promptsResp, err := queryPrompts(ctx, probe, true, connectionID)
	if err != nil {
		promptsResp = &mcp.ListPromptsResult{Prompts: []mcp.Prompt{}}
		errs = append(errs, err)
	}

	if len(errs) == 3 {
		return nil, nil, nil, errors.Join(errs...)
	}
	return toolsResp, resourcesResp, promptsResp, nil
}

// toolInputSchema converts the SDK's schema struct to a plain map.
func toolInputSchema(tool mcp.Tool) map[string]any {
	schema := map[string]any{
		"type": tool.InputSchema.Type,
	}
	if tool.InputSchema.Properties != nil {
		schema["properties"] = tool.InputSchema.Properties
	}
	if len(tool.InputSchema.Required) > 0 {
		schema["required"] = tool.InputSchema.Required
	}
	if tool.InputSchema.Defs != nil {
		schema["$defs"] = tool.InputSchema.Defs
	}
	return schema
}

// ListCapabilities queries an upstream for its capabilities. Only the
// capability types the server advertised during initialization are queried.
func (h *httpUpstreamClient) ListCapabilities(
	ctx context.Context, target *vmcp.ConnectionTarget,
) (*vmcp.CapabilityList, error) {
	logger.Debugf("Querying capabilities from connection %s (%s)", target.ConnectionName, target.BaseURL)

	c, err := h.clientFactory(ctx, target)
	if err != nil {
		return nil, wrapUpstreamError(err, target.ConnectionID, "create client")
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Debugf("Failed to close client: %v", err)
		}
	}()

	var toolsResp *mcp.ListToolsResult
	var resourcesResp *mcp.ListResourcesResult
	var promptsResp *mcp.ListPromptsResult

	serverCaps, initErr := initializeClient(ctx, c)
	if initErr == nil {
		toolsResp, err = queryTools(ctx, c, serverCaps.Tools != nil, target.ConnectionID)
		if err != nil {
			return nil, wrapUpstreamError(err, target.ConnectionID, "list tools")
		}
		resourcesResp, err = queryResources(ctx, c, serverCaps.Resources != nil, target.ConnectionID)
		if err != nil {
			return nil, wrapUpstreamError(err, target.ConnectionID, "list resources")
		}
		promptsResp, err = queryPrompts(ctx, c, serverCaps.Prompts != nil, target.ConnectionID)
		if err != nil {
			return nil, wrapUpstreamError(err, target.ConnectionID, "list prompts")
		}
	} else {
		// Some upstreams reject or botch the handshake yet still answer
		// list requests. Probe every capability list before dropping the
		// connection; a list that fails on such an upstream counts as
		// empty rather than fatal.
		logger.Warnf("Failed to initialize connection %s, probing capability lists directly: %v",
			target.ConnectionID, initErr)
		toolsResp, resourcesResp, promptsResp, err = probeCapabilityLists(ctx, c, target.ConnectionID)
		if err != nil {
			return nil, wrapUpstreamError(
				errors.Join(initErr, err), target.ConnectionID, "initialize client")
		}
	}

	capabilities := &vmcp.CapabilityList{
		Tools:     make([]vmcp.Tool, len(toolsResp.Tools)),
		Resources: make([]vmcp.Resource, len(resourcesResp.Resources)),
		Prompts:   make([]vmcp.Prompt, len(promptsResp.Prompts)),
	}

	for i, tool := range toolsResp.Tools {
		capabilities.Tools[i] = vmcp.Tool{
			Name:         tool.Name,
			Description:  tool.Description,
			InputSchema:  toolInputSchema(tool),
			ConnectionID: target.ConnectionID,
		}
	}
	for i, resource := range resourcesResp.Resources {
		capabilities.Resources[i] = vmcp.Resource{
			URI:          resource.URI,
			Name:         resource.Name,
			Description:  resource.Description,
			MimeType:     resource.MIMEType,
			ConnectionID: target.ConnectionID,
		}
	}
	for i, prompt := range promptsResp.Prompts {
		args := make([]vmcp.PromptArgument, len(prompt.Arguments))
		for j, arg := range prompt.Arguments {
			args[j] = vmcp.PromptArgument{
				Name:        arg.Name,
				Description: arg.Description,
				Required:    arg.Required,
			}
		}
		capabilities.Prompts[i] = vmcp.Prompt{
			Name:         prompt.Name,
			Description:  prompt.Description,
			Arguments:    args,
			ConnectionID: target.ConnectionID,
		}
	}

	logger.Debugf("Connection %s capabilities: %d tools, %d resources, %d prompts",
		target.ConnectionName, len(capabilities.Tools), len(capabilities.Resources), len(capabilities.Prompts))

	return capabilities, nil
}

// CallTool invokes a tool on the upstream. The upstream's isError flag and
// _meta field are relayed verbatim; only transport and protocol failures
// surface as Go errors.
func (h *httpUpstreamClient) CallTool(
	ctx context.Context,
	target *vmcp.ConnectionTarget,
	toolName string,
	arguments map[string]any,
	meta map[string]any,
) (*vmcp.ToolCallResult, error) {
	logger.Debugf("Calling tool %s on connection %s", toolName, target.ConnectionName)

	c, err := h.clientFactory(ctx, target)
	if err != nil {
		return nil, wrapUpstreamError(err, target.ConnectionID, "create client")
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Debugf("Failed to close client: %v", err)
		}
	}()

	if _, err := initializeClient(ctx, c); err != nil {
		return nil, wrapUpstreamError(err, target.ConnectionID, "initialize client")
	}

	// Collision resolution may have renamed the tool; upstreams only know
	// their own original names.
	upstreamToolName := target.UpstreamCapabilityName(toolName)
	if upstreamToolName != toolName {
		logger.Debugf("Translating tool name: %s (exposed) to %s (upstream)", toolName, upstreamToolName)
	}

	result, err := c.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      upstreamToolName,
			Arguments: arguments,
			Meta:      conversion.ToMCPMeta(meta),
		},
	})
	if err != nil {
		return nil, wrapUpstreamError(err, target.ConnectionID, "call tool")
	}

	responseMeta := conversion.FromMCPMeta(result.Meta)

	if result.IsError {
		var errorMsg string
		if len(result.Content) > 0 {
			if textContent, ok := mcp.AsTextContent(result.Content[0]); ok {
				errorMsg = textContent.Text
			}
		}
		if errorMsg == "" {
			errorMsg = "tool execution error"
		}
		logger.Warnf("Tool %s on connection %s returned isError=true: %s", toolName, target.ConnectionID, errorMsg)
		// Still return the full result; the error belongs to the caller.
	}

	contentArray := make([]vmcp.Content, len(result.Content))
	for i, content := range result.Content {
		contentArray[i] = conversion.FromMCPContent(content)
	}

	var structuredContent map[string]any
	if result.StructuredContent != nil {
		if structuredMap, ok := result.StructuredContent.(map[string]any); ok {
			structuredContent = structuredMap
		}
	}

	return &vmcp.ToolCallResult{
		Content:           contentArray,
		StructuredContent: structuredContent,
		IsError:           result.IsError,
		Meta:              responseMeta,
	}, nil
}

// ReadResource retrieves a resource from the upstream. Multiple contents
// are concatenated; blob contents are base64-decoded first.
func (h *httpUpstreamClient) ReadResource(
	ctx context.Context, target *vmcp.ConnectionTarget, uri string,
) (*vmcp.ResourceReadResult, error) {
	logger.Debugf("Reading resource %s from connection %s", uri, target.ConnectionName)

	c, err := h.clientFactory(ctx, target)
	if err != nil {
		return nil, wrapUpstreamError(err, target.ConnectionID, "create client")
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Debugf("Failed to close client: %v", err)
		}
	}()

	if _, err := initializeClient(ctx, c); err != nil {
		return nil, wrapUpstreamError(err, target.ConnectionID, "initialize client")
	}

	result, err := c.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: target.UpstreamCapabilityName(uri),
		},
	})
	if err != nil {
		return nil, wrapUpstreamError(err, target.ConnectionID, "read resource")
	}

	var data []byte
	var mimeType string
	for i, content := range result.Contents {
		if textContent, ok := mcp.AsTextResourceContents(content); ok {
			data = append(data, []byte(textContent.Text)...)
			if i == 0 && textContent.MIMEType != "" {
				mimeType = textContent.MIMEType
			}
		} else if blobContent, ok := mcp.AsBlobResourceContents(content); ok {
			decoded, err := base64.StdEncoding.DecodeString(blobContent.Blob)
			if err != nil {
				logger.Warnf("Failed to decode base64 blob from resource %s on connection %s: %v",
					uri, target.ConnectionID, err)
				data = append(data, []byte(blobContent.Blob)...)
			} else {
				data = append(data, decoded...)
			}
			if i == 0 && blobContent.MIMEType != "" {
				mimeType = blobContent.MIMEType
			}
		}
	}

	return &vmcp.ResourceReadResult{
		Contents: data,
		MimeType: mimeType,
		Meta:     conversion.FromMCPMeta(result.Meta),
	}, nil
}

// GetPrompt retrieves a prompt from the upstream and flattens its messages
// into a single text block.
func (h *httpUpstreamClient) GetPrompt(
	ctx context.Context,
	target *vmcp.ConnectionTarget,
	name string,
	arguments map[string]any,
) (*vmcp.PromptGetResult, error) {
	logger.Debugf("Getting prompt %s from connection %s", name, target.ConnectionName)

	c, err := h.clientFactory(ctx, target)
	if err != nil {
		return nil, wrapUpstreamError(err, target.ConnectionID, "create client")
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Debugf("Failed to close client: %v", err)
		}
	}()

	if _, err := initializeClient(ctx, c); err != nil {
		return nil, wrapUpstreamError(err, target.ConnectionID, "initialize client")
	}

	// The MCP prompt protocol takes string arguments.
	stringArgs := make(map[string]string, len(arguments))
	for k, v := range arguments {
		stringArgs[k] = fmt.Sprintf("%v", v)
	}

	result, err := c.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{
			Name:      target.UpstreamCapabilityName(name),
			Arguments: stringArgs,
		},
	})
	if err != nil {
		return nil, wrapUpstreamError(err, target.ConnectionID, "get prompt")
	}

	var prompt string
	for _, msg := range result.Messages {
		if msg.Role != "" {
			prompt += fmt.Sprintf("[%s] ", msg.Role)
		}
		if textContent, ok := mcp.AsTextContent(msg.Content); ok {
			prompt += textContent.Text + "\n"
		}
	}

	return &vmcp.PromptGetResult{
		Messages:    prompt,
		Description: result.Description,
		Meta:        conversion.FromMCPMeta(result.Meta),
	}, nil
}
