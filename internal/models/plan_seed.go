package models

import "github.com/google/uuid"

// DefaultPlans is the launch catalog. PlanRepo.Seed matches rows by name
// and provider, so the random ids here only matter on first insert.
func DefaultPlans() []*Plan {
	hours24, hours72 := 24, 72
	priStarter, priGrowth, priPro := "pri_starter", "pri_growth", "pri_pro"
	return []*Plan{
		// INR credit packs (Razorpay, one-time)
		{ID: uuid.New(), Name: "Starter", Price: 99, Currency: "INR", Credits: 50, BillingType: BillingOneTime, Provider: ProviderRazorpay, PlanType: PlanTypeCreditPack},
		{ID: uuid.New(), Name: "Growth", Price: 199, Currency: "INR", Credits: 150, BillingType: BillingOneTime, Provider: ProviderRazorpay, PlanType: PlanTypeCreditPack},
		{ID: uuid.New(), Name: "Pro", Price: 999, Currency: "INR", Credits: 1000, BillingType: BillingOneTime, Provider: ProviderRazorpay, PlanType: PlanTypeCreditPack},

		// Unlimited windows (Razorpay, one-time)
		{ID: uuid.New(), Name: "24h Unlimited", Price: 149, Currency: "INR", BillingType: BillingOneTime, Provider: ProviderRazorpay, PlanType: PlanTypeUnlimited, DurationHours: &hours24},
		{ID: uuid.New(), Name: "72h Unlimited", Price: 299, Currency: "INR", BillingType: BillingOneTime, Provider: ProviderRazorpay, PlanType: PlanTypeUnlimited, DurationHours: &hours72},

		// Buyer-priced pack (Razorpay, one-time)
		{ID: uuid.New(), Name: "Custom Credits", Price: 0, Currency: "INR", BillingType: BillingOneTime, Provider: ProviderRazorpay, PlanType: PlanTypeCustom, IsCustom: true},

		// USD subscriptions (Paddle)
		{ID: uuid.New(), Name: "Starter", Price: 9, Currency: "USD", Credits: 200, BillingType: BillingSubscription, Provider: ProviderPaddle, PlanType: PlanTypeCreditPack, PaddlePriceID: &priStarter},
		{ID: uuid.New(), Name: "Growth", Price: 19, Currency: "USD", Credits: 600, BillingType: BillingSubscription, Provider: ProviderPaddle, PlanType: PlanTypeCreditPack, PaddlePriceID: &priGrowth},
		{ID: uuid.New(), Name: "Pro", Price: 49, Currency: "USD", Credits: 2000, BillingType: BillingSubscription, Provider: ProviderPaddle, PlanType: PlanTypeCreditPack, PaddlePriceID: &priPro},
	}
}
