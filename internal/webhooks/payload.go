package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidPayload wraps decode and validation failures.
var ErrInvalidPayload = errors.New("webhooks: invalid payload")

// OrderPaidPayload is the versioned order.paid event body. Lines may carry a
// partner sub-object with the commission terms agreed for that sale.
type OrderPaidPayload struct {
	Event     string `json:"event" validate:"required,eq=order.paid"`
	Version   string `json:"version" validate:"required,eq=2.0"`
	EventID   string `json:"event_id" validate:"required"`
	EmpresaID int64  `json:"empresa_id" validate:"required"`
	Order     struct {
		ID       string  `json:"id" validate:"required"`
		Currency string  `json:"moneda"`
		Total    float64 `json:"total" validate:"gt=0"`
	} `json:"order" validate:"required"`
	Customer struct {
		RUT         string `json:"rut" validate:"required"`
		RazonSocial string `json:"razon_social" validate:"required"`
		Email       string `json:"email" validate:"omitempty,email"`
		Direccion   string `json:"direccion"`
	} `json:"customer" validate:"required"`
	Lines   []OrderLine `json:"lines" validate:"required,min=1,dive"`
	Payment struct {
		Method     string  `json:"metodo" validate:"omitempty,oneof=efectivo transferencia tarjeta"`
		Gateway    string  `json:"pasarela"`
		GatewayFee float64 `json:"comision_pasarela" validate:"gte=0"`
	} `json:"payment"`
}

// OrderLine is one sold item within the order.
type OrderLine struct {
	Description string       `json:"descripcion" validate:"required"`
	Quantity    float64      `json:"cantidad" validate:"required,gt=0"`
	UnitPrice   float64      `json:"precio_unitario" validate:"gte=0"`
	IVAPct      float64      `json:"iva_pct" validate:"gte=0"`
	Partner     *LinePartner `json:"partner" validate:"omitempty"`
}

// LinePartner carries the commission terms for a partner-sold line.
type LinePartner struct {
	Documento   string  `json:"documento" validate:"required"`
	RazonSocial string  `json:"razon_social" validate:"required"`
	Email       string  `json:"email" validate:"omitempty,email"`
	ComisionPct float64 `json:"comision_pct" validate:"gte=0,lte=100"`
	Frecuencia  string  `json:"frecuencia" validate:"omitempty,oneof=semanal quincenal mensual bimensual"`
}

// ParsePayload decodes and validates an order.paid body.
func ParsePayload(raw []byte, v *validator.Validate) (OrderPaidPayload, error) {
	var p OrderPaidPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return OrderPaidPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := v.Struct(p); err != nil {
		return OrderPaidPayload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}
