package partner

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Driver selects the adapter implementation for a partner.
type Driver string

const (
	DriverBankHTTP        Driver = "bank_http"
	DriverMobileMoneyHTTP Driver = "mobile_money_http"
	DriverSimulated       Driver = "simulated"
)

const defaultTimeout = 3 * time.Second

// Settings describes one partner in the partners file.
type Settings struct {
	Code      string        `yaml:"code"`
	Name      string        `yaml:"name"`
	Kind      Kind          `yaml:"kind"`
	Driver    Driver        `yaml:"driver"`
	BaseURL   string        `yaml:"base_url"`
	SecretEnv string        `yaml:"secret_env"`
	Timeout   time.Duration `yaml:"timeout"`
	Disabled  bool          `yaml:"disabled"`
	Active    bool          `yaml:"-"`
	Prefixes  []string      `yaml:"prefixes"`

	// simulated driver only
	MaxAmount      float64 `yaml:"max_amount"`
	SalaryMultiple float64 `yaml:"salary_multiple"`
	MinSalary      float64 `yaml:"min_salary"`
}

type settingsFile struct {
	Partners []Settings `yaml:"partners"`
}

// LoadSettings reads the partners file. An empty path yields DefaultSettings.
func LoadSettings(path string) ([]Settings, error) {
	if path == "" {
		return DefaultSettings(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read partners file: %w", err)
	}
	return ParseSettings(raw)
}

// ParseSettings decodes and normalizes partner settings.
func ParseSettings(raw []byte) ([]Settings, error) {
	var f settingsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse partners file: %w", err)
	}
	if len(f.Partners) == 0 {
		return nil, fmt.Errorf("partners file lists no partners")
	}
	for i := range f.Partners {
		s := &f.Partners[i]
		s.Code = strings.ToUpper(strings.TrimSpace(s.Code))
		if s.Code == "" {
			return nil, fmt.Errorf("partner #%d has no code", i+1)
		}
		if s.Name == "" {
			s.Name = s.Code
		}
		s.Active = !s.Disabled
		if s.Timeout <= 0 {
			s.Timeout = defaultTimeout
		}
		switch s.Kind {
		case KindBank, KindMobileMoney:
		default:
			return nil, fmt.Errorf("partner %s: unknown kind %q", s.Code, s.Kind)
		}
		switch s.Driver {
		case DriverBankHTTP, DriverMobileMoneyHTTP:
			if s.BaseURL == "" {
				return nil, fmt.Errorf("partner %s: base_url required for %s", s.Code, s.Driver)
			}
		case DriverSimulated:
		default:
			return nil, fmt.Errorf("partner %s: unknown driver %q", s.Code, s.Driver)
		}
	}
	return f.Partners, nil
}

// Build constructs the registry from settings, in file order.
func Build(settings []Settings, client *http.Client, issuer string) (*Registry, error) {
	if client == nil {
		client = &http.Client{}
	}
	reg := NewRegistry()
	for _, s := range settings {
		var p Partner
		switch s.Driver {
		case DriverBankHTTP:
			p = NewBank(s, client, NewTokenSigner(issuer, os.Getenv(s.SecretEnv)))
		case DriverMobileMoneyHTTP:
			p = NewMobileMoney(s, client, NewTokenSigner(issuer, os.Getenv(s.SecretEnv)))
		case DriverSimulated:
			p = NewSimulated(s)
		default:
			return nil, fmt.Errorf("partner %s: unknown driver %q", s.Code, s.Driver)
		}
		if err := reg.Register(p, s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// DefaultSettings is a fully simulated partner set for local runs.
func DefaultSettings() []Settings {
	bank := func(code, name string, max float64) Settings {
		return Settings{Code: code, Name: name, Kind: KindBank, Driver: DriverSimulated, Timeout: defaultTimeout,
			Active: true, MaxAmount: max, SalaryMultiple: 2, MinSalary: 5000}
	}
	wallet := func(code, name string, prefixes ...string) Settings {
		return Settings{Code: code, Name: name, Kind: KindMobileMoney, Driver: DriverSimulated, Timeout: defaultTimeout,
			Active: true, Prefixes: prefixes, MaxAmount: 20000, SalaryMultiple: 1}
	}
	return []Settings{
		bank("BIM", "Millennium BIM", 40000),
		bank("BCI", "BCI", 35000),
		bank("SB", "Standard Bank", 50000),
		bank("ABSA", "Absa", 30000),
		bank("MOZA", "Moza Banco", 25000),
		bank("LETSHEGO", "Letshego", 20000),
		wallet("MPESA", "M-Pesa", "84", "85"),
		wallet("EMOLA", "e-Mola", "86", "87"),
		wallet("MKESH", "mKesh", "82", "83"),
	}
}
