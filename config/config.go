package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"stablebond/native/bank"
	"stablebond/native/stable"
)

// Genesis describes the initial protocol state loaded into an empty store.
type Genesis struct {
	Protocol Protocol      `toml:"protocol"`
	Params   stable.Params `toml:"params"`
	Bonds    []Bond        `toml:"bond"`
	Assets   []Asset       `toml:"asset"`
}

// Protocol holds the global policy section.
type Protocol struct {
	Admin                 string   `toml:"Admin"`
	FeeVault              string   `toml:"FeeVault"`
	FeeToken              string   `toml:"FeeToken"`
	MinCollateralRatioBps uint32   `toml:"MinCollateralRatioBps"`
	BaseFeeBps            uint32   `toml:"BaseFeeBps"`
	Collectors            []string `toml:"Collectors"`
}

// Bond is one `[[bond]]` entry.
type Bond struct {
	Address             string  `toml:"Address"`
	PaymentAsset        string  `toml:"PaymentAsset"`
	Feed                string  `toml:"Feed"`
	MinCreationAmount   uint64  `toml:"MinCreationAmount"`
	MinRedemptionAmount uint64  `toml:"MinRedemptionAmount"`
	CustomFeeBps        *uint32 `toml:"CustomFeeBps,omitempty"`
	Enabled             *bool   `toml:"Enabled,omitempty"`
}

// Asset is one `[[asset]]` entry. Assets are created by the protocol admin.
type Asset struct {
	Address            string `toml:"Address"`
	Name               string `toml:"Name"`
	Symbol             string `toml:"Symbol"`
	TargetCurrency     string `toml:"TargetCurrency"`
	Bond               string `toml:"Bond"`
	Feed               string `toml:"Feed"`
	CollateralVault    string `toml:"CollateralVault"`
	YieldToken         string `toml:"YieldToken"`
	CollateralRatioBps uint32 `toml:"CollateralRatioBps"`
}

// Load reads and validates a genesis file.
func Load(path string) (*Genesis, error) {
	g := &Genesis{}
	meta, err := toml.DecodeFile(path, g)
	if err != nil {
		return nil, fmt.Errorf("genesis: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("genesis: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	if g.Protocol.MinCollateralRatioBps == 0 {
		g.Protocol.MinCollateralRatioBps = stable.DefaultCollateralRatioBps
	}
	if err := ValidateGenesis(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Save writes the genesis document as TOML.
func Save(path string, g *Genesis) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(g)
}

func parseAddress(field, value string) (common.Address, error) {
	addr, err := bank.ParseAddress(value)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

func parseOptionalAddress(field, value string) (common.Address, error) {
	if strings.TrimSpace(value) == "" {
		return common.Address{}, nil
	}
	return parseAddress(field, value)
}
