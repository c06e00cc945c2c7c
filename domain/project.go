// Package domain provides core domain types and entities for bygga.
package domain

import (
	"fmt"
	"time"
)

const (
	DefaultRunsOn = "ubuntu-latest"
	DefaultBranch = "main"
)

// DeployMethod describes how one kind of build is run on the remote CI.
// Type is the selector callers pass when dispatching.
type DeployMethod struct {
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	RunsOn      string   `json:"runs_on"`
	Branch      string   `json:"branch"`
	Commands    []string `json:"commands"`
	Outputs     []string `json:"outputs"`
	Compress    bool     `json:"compress"`
}

// RunnerLabel returns the runner label, defaulting to ubuntu-latest
func (m DeployMethod) RunnerLabel() string {
	if m.RunsOn == "" {
		return DefaultRunsOn
	}
	return m.RunsOn
}

// SourceBranch returns the branch of the source repository to build, defaulting to main
func (m DeployMethod) SourceBranch() string {
	if m.Branch == "" {
		return DefaultBranch
	}
	return m.Branch
}

// EnvironmentVariable declares a variable callers may supply when dispatching
type EnvironmentVariable struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Pricing holds unit prices per order type. A nil price means the plan is not offered.
type Pricing struct {
	Monthly *float64 `json:"monthly,omitempty"`
	Yearly  *float64 `json:"yearly,omitempty"`
	PerUse  *float64 `json:"per_use,omitempty"`
}

// UnitPrice returns the price for one unit of the given order type
func (p Pricing) UnitPrice(orderType OrderType) (float64, bool) {
	var price *float64
	switch orderType {
	case OrderTypeMonthly:
		price = p.Monthly
	case OrderTypeYearly:
		price = p.Yearly
	case OrderTypePerUse:
		price = p.PerUse
	}
	if price == nil {
		return 0, false
	}
	return *price, true
}

// CryptomusConfig holds per-project payment gateway credentials
type CryptomusConfig struct {
	APIKey     string `json:"api_key,omitempty"`
	MerchantID string `json:"merchant_id,omitempty"`
}

// PaymentConfig groups the payment gateway credentials of a project
type PaymentConfig struct {
	Cryptomus *CryptomusConfig `json:"cryptomus,omitempty"`
}

// GatewayCredentials returns the configured gateway credentials, if complete
func (c *PaymentConfig) GatewayCredentials() (*CryptomusConfig, bool) {
	if c == nil || c.Cryptomus == nil || c.Cryptomus.APIKey == "" {
		return nil, false
	}
	return c.Cryptomus, true
}

type Project struct {
	ID            int64
	Name          string
	Description   string
	RepoOwner     *string
	RepoName      *string
	Preview       *string
	WorkflowID    *int64
	DeployMethods []DeployMethod
	Environment   []EnvironmentVariable
	Pricing       Pricing
	PaymentConfig *PaymentConfig
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeployMethod finds a deploy method by its type selector
func (p *Project) DeployMethod(methodType string) (DeployMethod, bool) {
	for _, m := range p.DeployMethods {
		if m.Type == methodType {
			return m, true
		}
	}
	return DeployMethod{}, false
}

// ValidateDeployMethods checks that every deploy method has a type and that types are unique
func (p *Project) ValidateDeployMethods() error {
	seen := make(map[string]struct{}, len(p.DeployMethods))
	for i, m := range p.DeployMethods {
		if m.Type == "" {
			return fmt.Errorf("deploy method %d has an empty type", i)
		}
		if _, ok := seen[m.Type]; ok {
			return fmt.Errorf("duplicate deploy method type: %s", m.Type)
		}
		seen[m.Type] = struct{}{}
	}
	return nil
}

func (p *Project) RepoOwnerStr() string {
	if p.RepoOwner == nil {
		return ""
	}
	return *p.RepoOwner
}

func (p *Project) RepoNameStr() string {
	if p.RepoName == nil {
		return ""
	}
	return *p.RepoName
}

// Public returns a copy without repository coordinates, workflow binding and gateway credentials
func (p *Project) Public() *Project {
	public := *p
	public.RepoOwner = nil
	public.RepoName = nil
	public.WorkflowID = nil
	public.PaymentConfig = nil
	return &public
}
