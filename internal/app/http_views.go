package app

import (
	"time"

	"github.com/shopspring/decimal"

	"propie/api/internal/money"
	"propie/api/internal/store"
)

func amountJSON(value decimal.NullDecimal) any {
	if !value.Valid {
		return nil
	}
	return value.Decimal.StringFixed(2)
}

func timeJSON(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func developmentJSON(d store.Development) map[string]any {
	return map[string]any{
		"id":               d.ID,
		"slug":             d.Slug,
		"name":             d.Name,
		"developerId":      d.DeveloperID,
		"status":           d.Status,
		"description":      d.Description,
		"shortDescription": d.ShortDescription,
		"mainImage":        d.MainImage,
		"address":          d.Address,
		"city":             d.City,
		"county":           d.County,
		"eircode":          d.Eircode,
		"latitude":         d.Latitude,
		"longitude":        d.Longitude,
		"totalUnits":       d.TotalUnits,
		"features":         nonNilStrings(d.Features),
		"published":        d.Published,
		"createdAt":        d.CreatedAt.Format(time.RFC3339),
		"updatedAt":        d.UpdatedAt.Format(time.RFC3339),
	}
}

func developmentsJSON(items []store.Development) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, d := range items {
		out = append(out, developmentJSON(d))
	}
	return out
}

func unitJSON(u store.Unit) map[string]any {
	return map[string]any{
		"id":            u.ID,
		"developmentId": u.DevelopmentID,
		"unitNumber":    u.UnitNumber,
		"name":          u.Name,
		"type":          u.Type,
		"bedrooms":      u.Bedrooms,
		"bathrooms":     u.Bathrooms,
		"sizeSqm":       u.SizeSqm,
		"basePrice":     u.BasePrice.StringFixed(2),
		"priceLabel":    money.FormatEUR(u.BasePrice),
		"status":        u.Status,
		"berRating":     u.BERRating,
		"block":         u.Block,
		"floor":         u.Floor,
		"features":      nonNilStrings(u.Features),
		"createdAt":     u.CreatedAt.Format(time.RFC3339),
		"updatedAt":     u.UpdatedAt.Format(time.RFC3339),
	}
}

func unitsJSON(items []store.Unit) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, u := range items {
		out = append(out, unitJSON(u))
	}
	return out
}

func documentJSON(d store.Document) map[string]any {
	return map[string]any{
		"id":          d.ID,
		"entityType":  d.EntityType,
		"entityId":    d.EntityID,
		"name":        d.Name,
		"type":        d.Type,
		"status":      d.Status,
		"contentType": d.ContentType,
		"sizeBytes":   d.SizeBytes,
		"checksum":    d.Checksum,
		"version":     d.Version,
		"uploadedBy":  d.UploadedBy,
		"reviewedBy":  d.ReviewedBy,
		"reviewNote":  d.ReviewNote,
		"createdAt":   d.CreatedAt.Format(time.RFC3339),
		"updatedAt":   d.UpdatedAt.Format(time.RFC3339),
	}
}

func documentsJSON(items []store.Document) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, d := range items {
		out = append(out, documentJSON(d))
	}
	return out
}

func saleJSON(s store.Sale) map[string]any {
	return map[string]any{
		"id":              s.ID,
		"unitId":          s.UnitID,
		"buyerId":         s.BuyerID,
		"agentId":         s.AgentID,
		"status":          s.Status,
		"agreedPrice":     amountJSON(s.AgreedPrice),
		"deposit":         amountJSON(s.Deposit),
		"mortgageAmount":  amountJSON(s.MortgageAmount),
		"enquiryDate":     s.EnquiryDate.Format(time.RFC3339),
		"reservationDate": timeJSON(s.ReservationDate),
		"contractDate":    timeJSON(s.ContractDate),
		"completionDate":  timeJSON(s.CompletionDate),
		"notes":           s.Notes,
		"tags":            nonNilStrings(s.Tags),
		"createdAt":       s.CreatedAt.Format(time.RFC3339),
		"updatedAt":       s.UpdatedAt.Format(time.RFC3339),
	}
}

func salesJSON(items []store.Sale) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, s := range items {
		out = append(out, saleJSON(s))
	}
	return out
}

func historyJSON(items []store.SaleStatusChange) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, c := range items {
		var previous any
		if c.PreviousStatus != "" {
			previous = c.PreviousStatus
		}
		out = append(out, map[string]any{
			"id":             c.ID,
			"saleId":         c.SaleID,
			"previousStatus": previous,
			"newStatus":      c.NewStatus,
			"changedBy":      c.ChangedBy,
			"note":           c.Note,
			"changedAt":      c.ChangedAt.Format(time.RFC3339),
		})
	}
	return out
}

func summaryJSON(s store.SalesSummary) map[string]any {
	return map[string]any{
		"totalSales":      s.TotalSales,
		"totalValue":      s.TotalValue.StringFixed(2),
		"completedSales":  s.CompletedSales,
		"completedValue":  s.CompletedValue.StringFixed(2),
		"activeSales":     s.ActiveSales,
		"statusBreakdown": s.StatusBreakdown,
	}
}

func professionalJSON(p store.Professional) map[string]any {
	return map[string]any{
		"id":                 p.ID,
		"name":               p.Name,
		"email":              p.Email,
		"phone":              p.Phone,
		"profession":         p.Profession,
		"organisation":       p.Organisation,
		"registrationNumber": p.RegistrationNumber,
		"status":             p.Status,
		"verifiedBy":         p.VerifiedBy,
		"verifiedAt":         timeJSON(p.VerifiedAt),
		"createdAt":          p.CreatedAt.Format(time.RFC3339),
		"updatedAt":          p.UpdatedAt.Format(time.RFC3339),
	}
}

func professionalsJSON(items []store.Professional) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, p := range items {
		out = append(out, professionalJSON(p))
	}
	return out
}

func teamMemberJSON(m store.TeamMember) map[string]any {
	return map[string]any{
		"developmentId":  m.DevelopmentID,
		"professionalId": m.ProfessionalID,
		"role":           m.Role,
		"status":         m.Status,
		"appointedBy":    m.AppointedBy,
		"appointedAt":    m.AppointedAt.Format(time.RFC3339),
		"professional":   professionalJSON(m.Professional),
	}
}

func auditJSON(items []store.AuditEntry) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, e := range items {
		out = append(out, map[string]any{
			"id":           e.ID,
			"actorId":      e.ActorID,
			"actorName":    e.ActorName,
			"action":       e.Action,
			"resourceType": e.ResourceType,
			"resourceId":   e.ResourceID,
			"outcome":      e.Outcome,
			"severity":     e.Severity,
			"ip":           e.IP,
			"userAgent":    e.UserAgent,
			"requestId":    e.RequestID,
			"metadata":     e.Metadata,
			"createdAt":    e.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
