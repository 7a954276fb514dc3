package migrate

// ApplyValidationRules runs an entity mapping's ValidationRules against
// every Create/Update record's produced field map (NoChange/TargetOnly/
// Error records are left alone: a record already flagged as an error, or
// one the diff found no reason to write, gains nothing from a validation
// pass). A violated rule turns the record into an Error record, matching
// how a transform error is reported.
func ApplyValidationRules(mapping EntityMapping, entity *ResolvedEntity) {
	if len(mapping.ValidationRules) == 0 {
		return
	}
	for i := range entity.Records {
		rec := &entity.Records[i]
		if rec.Action != ActionCreate && rec.Action != ActionUpdate {
			continue
		}
		details := EvaluateValidationRules(mapping.ValidationRules, rec.Fields, nil)
		if len(details) == 0 {
			continue
		}
		rec.Action = ActionError
		rec.Error = ValidationError(details)
	}
}
