package models

import (
	"fmt"
	"time"
)

// RelativeUpdated renders how long ago a review was last written, in the
// wording the listing cards use.
func RelativeUpdated(t *time.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return "Sin fecha"
	}

	diff := now.Sub(*t)
	switch {
	case diff < time.Hour:
		return "Actualizado hace unos minutos"
	case diff < 24*time.Hour:
		return "Actualizado hace unas horas"
	}

	days := int(diff / (24 * time.Hour))
	if days == 1 {
		return "Actualizado hace un día"
	}
	return fmt.Sprintf("Actualizado hace %d días", days)
}
