package journals

import (
	"fmt"
	"math"

	"github.com/ledgersur/ledgersur/internal/accounting/accounts"
)

// Posting templates translate business events into balanced line sets
// against the fixed chart codes. Every builder returns lines whose debit and
// credit sums match by construction; Validate re-checks the sum anyway.

// PaymentMethod selects the cash-side account for collections and payments.
type PaymentMethod string

const (
	PaymentEfectivo      PaymentMethod = "efectivo"
	PaymentTransferencia PaymentMethod = "transferencia"
	PaymentTarjeta       PaymentMethod = "tarjeta"
)

func cashAccountFor(method PaymentMethod) string {
	if method == PaymentEfectivo {
		return accounts.CodeCajaYBancos
	}
	return accounts.CodeBancoCuentaCorriente
}

// SaleInvoiceLines posts a confirmed sales invoice: receivable against
// revenue and VAT payable.
func SaleInvoiceLines(number string, subtotal, vat float64) []PostingLineInput {
	return []PostingLineInput{
		{AccountCode: accounts.CodeDeudoresPorVentas, Description: fmt.Sprintf("Factura %s", number), Debit: round2(subtotal + vat)},
		{AccountCode: accounts.CodeVentas, Description: fmt.Sprintf("Venta %s", number), Credit: round2(subtotal)},
		{AccountCode: accounts.CodeIVAPorPagar, Description: fmt.Sprintf("IVA ventas %s", number), Credit: round2(vat)},
	}
}

// PaymentReceivedLines posts a customer collection against the receivable.
func PaymentReceivedLines(number string, amount float64, method PaymentMethod) []PostingLineInput {
	return []PostingLineInput{
		{AccountCode: cashAccountFor(method), Description: fmt.Sprintf("Cobro factura %s", number), Debit: round2(amount)},
		{AccountCode: accounts.CodeDeudoresPorVentas, Description: fmt.Sprintf("Cancelación factura %s", number), Credit: round2(amount)},
	}
}

// CommissionExpenseLines accrues a partner commission as expense against
// commissions payable.
func CommissionExpenseLines(partner string, amount float64) []PostingLineInput {
	return []PostingLineInput{
		{AccountCode: accounts.CodeGastosComisiones, Description: fmt.Sprintf("Comisión %s", partner), Debit: round2(amount)},
		{AccountCode: accounts.CodeComisionesPorPagar, Description: fmt.Sprintf("Comisión por pagar %s", partner), Credit: round2(amount)},
	}
}

// PartnerPayoutLines posts the settlement purchase invoice: the gross sales
// volume as expense plus the VAT input credit on the partner's invoice,
// offset by the platform's own commission revenue, the gateway retention
// kept by the platform, and the VAT-inclusive net payable to the partner.
// gross + vat == platformFee + gatewayRetention + totalPayable.
func PartnerPayoutLines(number, partner string, gross, platformFee, gatewayRetention, vat, totalPayable float64) []PostingLineInput {
	return []PostingLineInput{
		{AccountCode: accounts.CodeGastosComisiones, Description: fmt.Sprintf("Liquidación %s %s", partner, number), Debit: round2(gross)},
		{AccountCode: accounts.CodeIVACreditoFiscal, Description: fmt.Sprintf("IVA compras %s", number), Debit: round2(vat)},
		{AccountCode: accounts.CodeIngresosComisiones, Description: fmt.Sprintf("Comisión plataforma %s", number), Credit: round2(platformFee)},
		{AccountCode: accounts.CodeIngresosRetenciones, Description: fmt.Sprintf("Retención pasarela %s", number), Credit: round2(gatewayRetention)},
		{AccountCode: accounts.CodeProveedores, Description: fmt.Sprintf("Por pagar %s", partner), Credit: round2(totalPayable)},
	}
}

// PurchaseInvoiceLines posts a confirmed purchase invoice: expense and VAT
// input credit against the supplier payable.
func PurchaseInvoiceLines(number, supplier string, subtotal, vat float64) []PostingLineInput {
	return []PostingLineInput{
		{AccountCode: accounts.CodeGastosGenerales, Description: fmt.Sprintf("Factura compra %s", number), Debit: round2(subtotal)},
		{AccountCode: accounts.CodeIVACreditoFiscal, Description: fmt.Sprintf("IVA compras %s", number), Debit: round2(vat)},
		{AccountCode: accounts.CodeProveedores, Description: fmt.Sprintf("Por pagar %s %s", supplier, number), Credit: round2(subtotal + vat)},
	}
}

// PayablePaymentLines posts the payment of a purchase invoice.
func PayablePaymentLines(number string, amount float64, method PaymentMethod) []PostingLineInput {
	return []PostingLineInput{
		{AccountCode: accounts.CodeProveedores, Description: fmt.Sprintf("Pago factura %s", number), Debit: round2(amount)},
		{AccountCode: cashAccountFor(method), Description: fmt.Sprintf("Egreso %s", number), Credit: round2(amount)},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
