package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	service "github.com/okian/leadrouter/internal/app"
	"github.com/okian/leadrouter/internal/domain/model"
	"github.com/okian/leadrouter/internal/domain/routing"
)

// routeFlags are the inputs of one manual routing pass.
type routeFlags struct {
	prospect      int64
	exclude       []string
	tier          string
	forceFallback bool
}

type routeOutput struct {
	PassID     string       `json:"pass_id"`
	Duplicate  bool         `json:"duplicate"`
	Owner      bool         `json:"owner"`
	Assignment routeSummary `json:"assignment"`
}

type routeSummary struct {
	ID        int64            `json:"id"`
	BrokerID  string           `json:"broker_id"`
	Status    model.Status     `json:"status"`
	Motive    model.MotiveType `json:"motive"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
}

func (f routeFlags) request() (routing.Request, error) {
	if f.prospect <= 0 {
		return routing.Request{}, errors.New("--prospect must be a positive id")
	}
	tier, err := model.ParseTier(f.tier)
	if err != nil {
		return routing.Request{}, err
	}
	return routing.Request{
		ProspectID:    f.prospect,
		Exclude:       model.NewBrokerSet(f.exclude...),
		StartTier:     tier,
		ForceFallback: f.forceFallback,
		Source:        routing.SourceManual,
	}, nil
}

func newRouteCmd(opts *rootOptions) *cobra.Command {
	var f routeFlags
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Run one routing pass for a prospect and print the assignment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := f.request()
			if err != nil {
				return err
			}
			return withService(cmd.Context(), opts, func(svc *service.Service) error {
				res, err := svc.Route(cmd.Context(), req)
				if err != nil {
					return err
				}
				out := routeOutput{
					PassID:    res.PassID,
					Duplicate: res.Duplicate,
					Owner:     res.Decision.IsOwner,
					Assignment: routeSummary{
						ID:        res.Assignment.ID,
						BrokerID:  res.Assignment.BrokerID,
						Status:    res.Assignment.Status,
						ExpiresAt: res.Assignment.ExpiresAt,
					},
				}
				if m := res.Assignment.Motive; m != nil {
					out.Assignment.Motive = m.Type()
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().Int64Var(&f.prospect, "prospect", 0, "prospect id")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "broker ids that must not receive the lead")
	cmd.Flags().StringVar(&f.tier, "tier", "", "start tier: external, internal or plantonista")
	cmd.Flags().BoolVar(&f.forceFallback, "force-fallback", false, "go straight to the on-call tier")
	_ = cmd.MarkFlagRequired("prospect")
	return cmd
}
