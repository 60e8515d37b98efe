package cel

// TransformExpressionExamples lists expressions accepted by NewTransformer.
var TransformExpressionExamples = map[string]string{
	"constant_label":   `"ok"`,
	"uppercase":        `{"content": content.upperAscii(), "label": "ok"}`,
	"classify_payload": `payload.level == "error" ? "alert" : "ok"`,
	"guarded_field":    `has(payload.status) && payload.status == "active" ? "active" : "ignore"`,
	"rewrite_and_tag":  `{"content": content.lowerAscii().trim(), "label": size(content) > 100 ? "large" : "small"}`,
	"drop_empty":       `size(content) == 0 ? "ignore" : "ok"`,
}

// SelectorExpressionExamples lists expressions accepted by NewSelector.
var SelectorExpressionExamples = map[string]string{
	"by_source":       `source_id`,
	"by_field":        `fields["tenant"]`,
	"fan_out":         `["audit", fields["tenant"]]`,
	"conditional":     `payload.severity == "high" ? ["alerts", "audit"] : ["audit"]`,
	"default_missing": `"region" in fields ? fields["region"] : "default"`,
}
