package plugins

import (
	"context"
	"fmt"
	"io"
	"net/rpc"
	"os"
	"os/exec"
	"sort"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"
)

const dispenseName = "extension"

// Handshake is shared by the host and rpc plugins. A mismatch fails the
// import with a readable error instead of a hung process.
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "QUIRE_PLUGIN",
	MagicCookieValue: "quire_extension",
}

// Member is a named function exported by an rpc plugin
type Member func(info HostInfo) error

// InvokeArgs are the arguments of a remote member call
type InvokeArgs struct {
	Name string
	Info HostInfo
}

// RPCServer is the plugin-side net/rpc receiver
type RPCServer struct {
	members map[string]Member
}

// Exports lists the member names the plugin provides
func (s *RPCServer) Exports(_ interface{}, resp *[]string) error {
	names := make([]string, 0, len(s.members))
	for name := range s.members {
		names = append(names, name)
	}
	sort.Strings(names)
	*resp = names
	return nil
}

// Invoke calls a member by name
func (s *RPCServer) Invoke(args InvokeArgs, _ *struct{}) error {
	member, ok := s.members[args.Name]
	if !ok {
		return fmt.Errorf("unknown member: %s", args.Name)
	}
	return member(args.Info)
}

// RPCClient is the host-side stub for an rpc plugin
type RPCClient struct {
	client *rpc.Client
}

// Exports asks the plugin for its member names
func (c *RPCClient) Exports() ([]string, error) {
	var names []string
	if err := c.client.Call("Plugin.Exports", new(interface{}), &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Invoke calls a remote member
func (c *RPCClient) Invoke(name string, info HostInfo) error {
	return c.client.Call("Plugin.Invoke", InvokeArgs{Name: name, Info: info}, &struct{}{})
}

// extensionPlugin implements goplugin.Plugin for both sides
type extensionPlugin struct {
	members map[string]Member
}

func (p *extensionPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &RPCServer{members: p.members}, nil
}

func (p *extensionPlugin) Client(_ *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}

// Serve runs an rpc plugin exporting the given members. It is called from
// the plugin binary's main and blocks until the host disconnects.
func Serve(members map[string]Member) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			dispenseName: &extensionPlugin{members: members},
		},
	})
}

// CommandFunc builds the command that starts an rpc plugin
type CommandFunc func(entry string) *exec.Cmd

// RPCImporter imports plugin executables through go-plugin. The handshake
// runs asynchronously; Import waits for it or for the context.
type RPCImporter struct {
	command CommandFunc
	logger  hclog.Logger
}

// NewRPCImporter creates an rpc importer. Plugin process logs are dropped
// unless debug is set.
func NewRPCImporter(debug bool) *RPCImporter {
	return &RPCImporter{
		command: func(entry string) *exec.Cmd { return exec.Command(entry) },
		logger:  newPluginLogger(debug),
	}
}

// WithCommand replaces the command builder
func (i *RPCImporter) WithCommand(fn CommandFunc) *RPCImporter {
	i.command = fn
	return i
}

func newPluginLogger(debug bool) hclog.Logger {
	level := hclog.Error
	var output io.Writer = io.Discard

	if debug {
		level = hclog.Debug
		output = os.Stderr
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   "quire-plugin",
		Level:  level,
		Output: output,
	})
}

type dialResult struct {
	module Module
	err    error
}

// Import starts the plugin executable and resolves its exports
func (i *RPCImporter) Import(ctx context.Context, entry string, _ *Manifest) (Module, error) {
	info, err := os.Stat(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to stat entry: %w", err)
	}
	if !info.Mode().IsRegular() || info.Mode()&0111 == 0 {
		return nil, fmt.Errorf("plugin entry is not executable: %s", entry)
	}

	done := make(chan dialResult, 1)
	go func() {
		module, err := i.dial(entry)
		done <- dialResult{module: module, err: err}
	}()

	select {
	case res := <-done:
		return res.module, res.err
	case <-ctx.Done():
		go func() {
			if res := <-done; res.module != nil {
				_ = res.module.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func (i *RPCImporter) dial(entry string) (Module, error) {
	client := goplugin.NewClient(&goplugin.ClientConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			dispenseName: &extensionPlugin{},
		},
		Cmd:              i.command(entry),
		AllowedProtocols: []goplugin.Protocol{goplugin.ProtocolNetRPC},
		Logger:           i.logger,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to plugin: %w", err)
	}

	raw, err := rpcClient.Dispense(dispenseName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}

	stub, ok := raw.(*RPCClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("unexpected plugin client type %T", raw)
	}

	names, err := stub.Exports()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to list plugin exports: %w", err)
	}

	exports := make(map[string]bool, len(names))
	for _, name := range names {
		exports[name] = true
	}

	return &rpcModule{client: client, stub: stub, exports: exports}, nil
}

type rpcModule struct {
	client  *goplugin.Client
	stub    *RPCClient
	exports map[string]bool
}

// Lookup returns an ActivateFunc that forwards to the remote member
func (m *rpcModule) Lookup(name string) (any, bool) {
	if !m.exports[name] {
		return nil, false
	}
	return ActivateFunc(func(host Host) error {
		return m.stub.Invoke(name, HostInfoFrom(host))
	}), true
}

func (m *rpcModule) Close() error {
	m.client.Kill()
	return nil
}

// HostInfoFrom snapshots a host for transfer to an rpc plugin
func HostInfoFrom(host Host) HostInfo {
	return HostInfo{
		Version: host.Version(),
		Options: host.Options(),
	}
}
