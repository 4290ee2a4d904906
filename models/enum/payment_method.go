package enum

// PaymentMethod 表示結帳時選擇的付款方式
type PaymentMethod string

const (
	PaymentMethodCOD  PaymentMethod = "COD"  // 貨到付款
	PaymentMethodCard PaymentMethod = "CARD" // 線上刷卡 (Stripe)
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCOD || m == PaymentMethodCard
}
