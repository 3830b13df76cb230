package idgen

import (
	"fmt"

	"github.com/inamkkkk/take-it-and-go/internal/config"
)

// Generator produces message ids.
type Generator interface {
	Generate() (string, error)
}

// New builds the generator selected by cfg.Type.
func New(cfg config.IDGenConfig) (Generator, error) {
	switch cfg.Type {
	case "", "ulid":
		return NewULIDGenerator(), nil
	case "uuid":
		return NewUUIDGenerator(), nil
	case "ksuid":
		return NewKSUIDGenerator(), nil
	case "nanoid":
		return NewNanoIDGenerator(cfg.NanoIDSize)
	case "cuid2":
		return NewCUID2Generator(cfg.CUID2Length)
	case "snowflake":
		return NewSnowflakeGenerator(cfg.MachineID, cfg.Epoch)
	default:
		return nil, fmt.Errorf("unsupported id generator: %s", cfg.Type)
	}
}
