package engine

import (
	"strconv"
	"time"

	"github.com/MyraWang0406/ADX-Mirix-1.15/internal/model"
)

// ExtractSignature derives the grouping key of a record:
// {hour}h_{region}_{lossType}, hour taken in loc.
func ExtractSignature(rec *model.TraceRecord, loc *time.Location) (string, error) {
	t, err := rec.Time(loc)
	if err != nil {
		return "", err
	}
	return signatureAt(rec, t, loc), nil
}

// signatureAt builds the signature from an already parsed timestamp.
func signatureAt(rec *model.TraceRecord, t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return BuildSignature(t.In(loc).Hour(), rec.Region(), rec.LossType())
}

// BuildSignature formats the signature parts.
func BuildSignature(hour int, region, lossType string) string {
	return strconv.Itoa(hour) + "h_" + region + "_" + lossType
}
