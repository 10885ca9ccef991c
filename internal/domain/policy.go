package domain

import "time"

// Policy holds every business constant the payment flows depend on. It is
// served to clients so they do not carry their own copies.
type Policy struct {
	// NativeAmountThreshold marks a native amount as naira when exceeded.
	NativeAmountThreshold float64 `json:"nativeAmountThreshold"`
	// UsdToNgnRate converts USD agreements for Nigerian viewers.
	UsdToNgnRate float64 `json:"usdToNgnRate"`
	// MinimumCharge is the floor applied by FinalizeAmount.
	MinimumCharge   float64 `json:"minimumCharge"`
	AmountPrecision int32   `json:"amountPrecision"`
	// InstallmentTolerance is the allowed gap between the installment sum
	// and the agreement total.
	InstallmentTolerance float64 `json:"installmentTolerance"`

	DashboardRefreshInterval time.Duration `json:"dashboardRefreshInterval"`

	VerifyMaxAttempts  int           `json:"verifyMaxAttempts"`
	VerifyInitialDelay time.Duration `json:"verifyInitialDelay"`
	VerifyMaxDelay     time.Duration `json:"verifyMaxDelay"`
	VerifyBackoff      float64       `json:"verifyBackoff"`
}

func DefaultPolicy() Policy {
	return Policy{
		NativeAmountThreshold:    5000,
		UsdToNgnRate:             1500,
		MinimumCharge:            0.002,
		AmountPrecision:          3,
		InstallmentTolerance:     0.01,
		DashboardRefreshInterval: 30 * time.Second,
		VerifyMaxAttempts:        10,
		VerifyInitialDelay:       2 * time.Second,
		VerifyMaxDelay:           10 * time.Second,
		VerifyBackoff:            1.5,
	}
}
