package main

import (
	"errors"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/leadrouter/internal/adapters/seed"
	service "github.com/okian/leadrouter/internal/app"
	"github.com/okian/leadrouter/internal/domain/routing"
)

type seedOutput struct {
	Brokers     int            `json:"brokers"`
	Clients     int            `json:"clients"`
	Properties  int            `json:"properties"`
	ProspectIDs []int64        `json:"prospect_ids"`
	Routed      map[string]any `json:"routed,omitempty"`
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var (
		path  string
		route bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load brokers, properties and prospects from a YAML fixture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fixture, err := seed.LoadFile(path)
			if err != nil {
				return err
			}
			return withService(cmd.Context(), opts, func(svc *service.Service) error {
				ctx := cmd.Context()
				sum, err := seed.Apply(ctx, svc.Store(), fixture, time.Now())
				if err != nil {
					return err
				}
				svc.InvalidateParams()

				out := seedOutput{
					Brokers:     sum.Brokers,
					Clients:     sum.Clients,
					Properties:  sum.Properties,
					ProspectIDs: sum.ProspectIDs,
				}
				if route {
					out.Routed = make(map[string]any, len(sum.ProspectIDs))
					for _, id := range sum.ProspectIDs {
						res, err := svc.Route(ctx, routing.Request{ProspectID: id, Source: routing.SourceNewLead})
						key := strconv.FormatInt(id, 10)
						switch {
						case errors.Is(err, routing.ErrNoEligibleBroker), errors.Is(err, routing.ErrMissingLocation):
							out.Routed[key] = err.Error()
						case err != nil:
							return err
						default:
							out.Routed[key] = res.Assignment.BrokerID
						}
					}
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "fixture file")
	cmd.Flags().BoolVar(&route, "route", false, "route every seeded prospect as a new lead")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
