package domain

// PlanTier 表示账户的计费套餐，决定邮件保留时长。
type PlanTier string

const (
	PlanFree  PlanTier = "free"
	PlanTier2 PlanTier = "tier2"
	PlanTier3 PlanTier = "tier3"
)

// AddressStatus 表示地址的生命周期状态。
type AddressStatus string

const (
	AddressActive   AddressStatus = "active"
	AddressDisabled AddressStatus = "disabled"
)
