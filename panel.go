package main

const BookingsRoute = "/mis-reservas"

// Panel is the status panel the waiting page renders.
type Panel struct {
	State     WaitState `json:"state"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	QRImage   string    `json:"qr_image,omitempty"`
	Steps     []string  `json:"steps,omitempty"`
	ExitRoute string    `json:"exit_route,omitempty"`
}

func RenderPanel(session WaitSession, qrImage string) Panel {
	switch session.State {
	case StateCompleted:
		return Panel{
			State:   StateCompleted,
			Title:   "¡Pago exitoso!",
			Message: session.Message,
		}
	case StateError:
		return Panel{
			State:     StateError,
			Title:     "No pudimos confirmar tu pago",
			Message:   session.Message,
			ExitRoute: BookingsRoute,
		}
	}

	switch session.PaymentMethod {
	case PaymentMethodQR:
		return Panel{
			State:   StateWaiting,
			Title:   "Escanea el código QR para pagar",
			Message: session.Message,
			QRImage: qrImage,
			Steps: []string{
				"Abre la aplicación de tu banco",
				"Selecciona la opción de pago con QR",
				"Escanea el código y confirma el monto",
				"Espera en esta página la confirmación",
			},
		}
	case PaymentMethodCard:
		return Panel{
			State:   StateWaiting,
			Title:   "Procesando el pago con tarjeta",
			Message: session.Message,
			Steps: []string{
				"Completa el pago en la ventana de la pasarela",
				"No cierres ni recargues esta página",
			},
		}
	default:
		return Panel{
			State:   StateWaiting,
			Title:   "Procesando tu pago",
			Message: session.Message,
		}
	}
}
