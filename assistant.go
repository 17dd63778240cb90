package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// newDefaultRegistry registers the functions the default assistant is
// created with.
func newDefaultRegistry(config Config) (*FunctionRegistry, error) {
	registry := NewFunctionRegistry()
	country := CountryInformation{
		BaseURL: config.CountriesURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
	if err := registry.Register(countryInformationSchema(), country); err != nil {
		return nil, err
	}
	return registry, nil
}

// runInteractive attaches to the stored assistant, creating one when
// none is recorded, and runs the shell on in and out until the user
// leaves.
func runInteractive(ctx context.Context, config Config, service ChatGPTService, registry *FunctionRegistry, in io.Reader, out io.Writer, progress runProgress) error {
	store := NewDescriptorStore(config.DescriptorPath, service)
	descriptor, created, err := store.LoadOrCreate(ctx, config.Model, registry.Schemas())
	if err != nil {
		return err
	}
	if created {
		fmt.Fprintln(out, "No existing assistant detected, creating new.")
	} else {
		fmt.Fprintln(out, "\nExisting assistant detected.")
	}
	log.Debug(fmt.Sprintf("using assistant %s (%s)", descriptor.AssistantId, config.DescriptorPath))

	fmt.Fprintf(out, "Hello there, I'm your personal assistant. You gave me these instructions:\n%s\n", descriptor.Instructions)

	session, err := NewSession(ctx, service)
	if err != nil {
		return err
	}

	opts := []DriverOption{
		WithPollInterval(config.PollInterval),
		WithMaxPolls(config.MaxPolls),
		WithToolConcurrency(config.ToolConcurrency),
	}
	if progress != nil {
		opts = append(opts, WithProgress(progress))
	}
	driver := NewRunDriver(session, registry, opts...)

	conversation := NewConversation(session, driver, descriptor.AssistantId, config.RunTimeout)
	uploader := NewUploader(service, store, descriptor)
	return NewShell(in, out, conversation, uploader).Run(ctx)
}
