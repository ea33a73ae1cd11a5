package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	producers "github.com/glimte/mmate-producers"
	"github.com/glimte/mmate-producers/config"
	"github.com/glimte/mmate-producers/contracts"
	"github.com/glimte/mmate-producers/converter"
	"github.com/glimte/mmate-producers/health"
	"github.com/glimte/mmate-producers/interceptors"
	"github.com/glimte/mmate-producers/producer"
	"github.com/spf13/cobra"
)

var errOffline = errors.New("offline client cannot send")

// offlineClient lets declarations compile without a broker
type offlineClient struct{}

func (offlineClient) Send(ctx context.Context, addr contracts.Address, msg *contracts.Message) error {
	return errOffline
}

func (offlineClient) SendAndReceive(ctx context.Context, addr contracts.Address, msg *contracts.Message) (*contracts.Message, error) {
	return nil, errOffline
}

func (f *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.url != "" {
		cfg.RabbitMQ.URL = f.url
	}
	return cfg, nil
}

func newValidateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Compile every declared client without connecting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ifaces, err := cfg.Interfaces()
			if err != nil {
				return err
			}

			offline := offlineClient{}
			jsonConverter := converter.NewJSONConverter()
			components := producer.NewComponents().
				RegisterClient(producers.TemplateName, offline).
				SetDefaultClient(offline).
				RegisterConverter(producers.ConverterJSON, jsonConverter).
				RegisterConverter(producers.ConverterSimple, converter.NewSimpleConverter()).
				RegisterConverter(producers.ConverterProtobuf, converter.NewProtoConverter()).
				SetDefaultConverter(jsonConverter)

			factory := producer.NewFactory(
				producer.WithComponents(components),
				producer.WithResolver(cfg.Resolver()),
				producer.WithLogger(flags.logger(cmd)),
			)

			out := cmd.OutOrStdout()
			for _, iface := range ifaces {
				stub, err := factory.Build(iface)
				if err != nil {
					return fmt.Errorf("client %s: %w", iface.Name, err)
				}
				printStub(out, stub)
			}
			fmt.Fprintf(out, "%d client(s) valid\n", len(ifaces))
			return nil
		},
	}
}

func printStub(out io.Writer, stub *producer.Stub) {
	fmt.Fprintln(out, stub.Name())
	for _, name := range stub.Methods() {
		ep, ok := stub.Endpoint(name)
		if !ok {
			continue
		}
		fmt.Fprintf(out, "  %-20s -> %-30s returns %s", name, ep.Address().String(), ep.Returns().Kind)
		if headers := ep.Headers(); len(headers) > 0 {
			keys := make([]string, 0, len(headers))
			for k := range headers {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pairs := make([]string, 0, len(keys))
			for _, k := range keys {
				pairs = append(pairs, k+"="+headers[k])
			}
			fmt.Fprintf(out, " headers [%s]", strings.Join(pairs, " "))
		}
		fmt.Fprintln(out)
	}
}

func newCallCmd(flags *globalFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "call <Client.Method> [args...]",
		Short: "Invoke one producer method and print the reply",
		Long: `Invoke one producer method with positional string arguments.
Arguments bound to a headers parameter take the form k=v,k2=v2.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clientName, methodName, ok := strings.Cut(args[0], ".")
			if !ok {
				return fmt.Errorf("expected Client.Method, got %q", args[0])
			}

			cfg, err := flags.load()
			if err != nil {
				return err
			}
			method, err := findMethod(cfg, clientName, methodName)
			if err != nil {
				return err
			}
			callArgs, err := bindArgs(method, args[1:])
			if err != nil {
				return err
			}

			logger := flags.logger(cmd)
			opts := []producers.ClientOption{producers.WithLogger(logger)}
			if flags.verbose {
				opts = append(opts, producers.WithObserver(interceptors.NewLoggingObserver(logger)))
			}

			client, err := producers.NewClientFromConfig(cfg, opts...)
			if err != nil {
				return err
			}
			defer client.Close()

			stub, _ := client.Producer(clientName)

			ctx, cancel := signalContext()
			defer cancel()
			ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
			defer cancelTimeout()

			reply, err := stub.Invoke(ctx, methodName, callArgs...)
			if err != nil {
				return err
			}
			return printReply(cmd.OutOrStdout(), method.Returns, reply)
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "Overall call timeout")
	return cmd
}

func findMethod(cfg *config.Config, clientName, methodName string) (config.MethodConfig, error) {
	for _, c := range cfg.Clients {
		if c.Name != clientName {
			continue
		}
		for _, m := range c.Methods {
			if m.Name == methodName {
				return m, nil
			}
		}
		return config.MethodConfig{}, fmt.Errorf("client %s has no method %s", clientName, methodName)
	}
	return config.MethodConfig{}, fmt.Errorf("no client named %s", clientName)
}

func bindArgs(method config.MethodConfig, args []string) ([]interface{}, error) {
	if len(args) != len(method.Params) {
		return nil, fmt.Errorf("%s takes %d argument(s), got %d", method.Name, len(method.Params), len(args))
	}

	out := make([]interface{}, len(args))
	for i, p := range method.Params {
		if p.Kind != "headers" {
			out[i] = args[i]
			continue
		}
		headers := make(map[string]interface{})
		for _, pair := range strings.Split(args[i], ",") {
			if pair == "" {
				continue
			}
			k, v, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("invalid header %q for %s, expected k=v", pair, p.Name)
			}
			headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		out[i] = headers
	}
	return out, nil
}

func printReply(out io.Writer, returns string, reply interface{}) error {
	if returns == "" || returns == "void" {
		fmt.Fprintln(out, "sent")
		return nil
	}
	if reply == nil {
		fmt.Fprintln(out, "no reply")
		return nil
	}

	switch r := reply.(type) {
	case *contracts.Message:
		fmt.Fprintf(out, "content-type: %s\n", r.Properties.ContentType)
		for _, k := range sortedHeaderKeys(r.Properties.Headers) {
			fmt.Fprintf(out, "%s: %v\n", k, r.Properties.Headers[k])
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, string(r.Body))
		return nil
	case *contracts.GenericMessage:
		for _, k := range sortedHeaderKeys(r.Headers) {
			fmt.Fprintf(out, "%s: %v\n", k, r.Headers[k])
		}
		fmt.Fprintln(out)
		reply = r.Payload
	}

	data, err := sonic.ConfigStd.MarshalIndent(reply, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render reply: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

func sortedHeaderKeys(headers map[string]interface{}) []string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newHealthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Connect to the broker and report health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			client, err := producers.NewClientWithOptions(cfg.RabbitMQ.URL,
				producers.WithLogger(flags.logger(cmd)),
				producers.WithTransportOptions(cfg.RabbitMQ.TemplateOptions(nil)...),
			)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := signalContext()
			defer cancel()

			result := client.Health(ctx)
			data, err := sonic.ConfigStd.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))

			if result.Status == health.StatusUnhealthy {
				return fmt.Errorf("broker is %s", result.Status)
			}
			return nil
		},
	}
}
