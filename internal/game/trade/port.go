package trade

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/porttown/internal/game/ledger"
	"github.com/cory-johannsen/porttown/internal/game/town"
)

// Port is a town's harbor. It levies a tax on every sale ships make to the
// town and holds the proceeds in its own account.
type Port struct {
	name     string
	tax      float64
	treasury ledger.Account
	town     *town.Town
	logger   *zap.Logger
}

// NewPort connects a port to t.
//
// Precondition: 0 <= tax <= 1; treasury and t are non-nil.
// Postcondition: on error no Port is returned.
func NewPort(name string, tax float64, treasury ledger.Account, t *town.Town, logger *zap.Logger) (*Port, error) {
	if tax < 0 || tax > 1 {
		return nil, fmt.Errorf("port %q: tax %g outside [0, 1]", name, tax)
	}
	if treasury == nil || t == nil {
		return nil, fmt.Errorf("port %q: treasury and town are required", name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Port{
		name:     name,
		tax:      tax,
		treasury: treasury,
		town:     t,
		logger:   logger.With(zap.String("port", name)),
	}, nil
}

// Name returns the port name.
func (p *Port) Name() string { return p.name }

// TaxPercentage returns the share of each sale kept by the port.
func (p *Port) TaxPercentage() float64 { return p.tax }

// Treasury returns the port's account.
func (p *Port) Treasury() ledger.Account { return p.treasury }

// Town returns the connected town.
func (p *Port) Town() *town.Town { return p.town }

// split divides a sale into the seller's net and the port's tax.
func (p *Port) split(paid float64) (net, tax float64) {
	return paid * (1 - p.tax), paid * p.tax
}
