package simulate

import (
	"context"
	"fmt"

	"github.com/valyala/fasthttp"

	"github.com/okian/scoreboard/internal/domain/model"
)

// Consistency logs in to the server at cfg.BaseURL and returns its
// consistency report. The server takes the snapshot between writes, so the
// result is valid while it is recording matches.
func Consistency(ctx context.Context, cfg Config) ([]model.Discrepancy, error) {
	c := newClient(cfg)
	if err := c.login(ctx, cfg.Username, cfg.Password); err != nil {
		return nil, err
	}
	var report struct {
		Discrepancies []model.Discrepancy `json:"discrepancies"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/api/admin/consistency", nil, &report); err != nil {
		return nil, fmt.Errorf("consistency check: %w", err)
	}
	return report.Discrepancies, nil
}
