package service

import "regexp"

// Intent is a coarse question category used to tune retrieval.
type Intent string

const (
	IntentClassify  Intent = "classify"
	IntentCalculate Intent = "calculate"
	IntentOrigin    Intent = "origin"
	IntentControl   Intent = "control"
	IntentProcedure Intent = "procedure"
	IntentLegal     Intent = "legal"
	IntentInfo      Intent = "info"
)

// intentRule binds lowercase substring patterns (French and Arabic) to
// one intent. Rules are evaluated in order; the first match becomes the
// primary intent, later matches still register for retrieval tuning.
type intentRule struct {
	intent   Intent
	patterns []string
}

var intentRules = []intentRule{
	{IntentClassify, []string{
		"classement", "classifi", "code sh", "code tarifaire", "position tarifaire",
		"quel code", "nomenclature", "quelle position",
		"تصنيف", "بند تعريف", "رمز النظام", "الرمز التعريفي",
	}},
	{IntentCalculate, []string{
		"taux", "droit de douane", "droits de douane", "droits d'importation", "calcul",
		"combien", "coût", "cout", "ddi", "tva", "taxe",
		"رسوم", "ضريبة", "احتساب", "كم تبلغ", "نسبة",
	}},
	{IntentOrigin, []string{
		"origine", "préférentiel", "preferentiel", "accord de libre", "certificat d'origine",
		"منشأ", "اتفاقية تفضيلية",
	}},
	{IntentControl, []string{
		"interdit", "prohibé", "prohibe", "restriction", "autorisation", "licence",
		"contrôle", "controle", "permis",
		"ممنوع", "محظور", "ترخيص", "مراقبة",
	}},
	{IntentProcedure, []string{
		"procédure", "procedure", "démarche", "demarche", "formalité", "formalite",
		"dédouanement", "dedouanement", "déclaration", "declaration", "comment importer",
		"إجراء", "تصريح", "استيراد", "تصدير", "جمركة",
	}},
	{IntentLegal, []string{
		"article", "loi", "décret", "decret", "circulaire", "réglementation",
		"reglementation", "code des douanes",
		"قانون", "مادة", "مرسوم", "دورية",
	}},
}

// stopWords are dropped during keyword extraction: French function
// words plus customs-domain terms that appear in nearly every question,
// and their Arabic counterparts.
var stopWords = map[string]struct{}{
	// French function words
	"les": {}, "des": {}, "une": {}, "est": {}, "sont": {}, "pour": {}, "avec": {},
	"dans": {}, "sur": {}, "par": {}, "pas": {}, "que": {}, "qui": {}, "quoi": {},
	"quel": {}, "quelle": {}, "quels": {}, "quelles": {}, "comment": {}, "combien": {},
	"est-ce": {}, "c'est": {}, "cette": {}, "ces": {}, "mon": {}, "mes": {}, "vous": {},
	"nous": {}, "leur": {}, "leurs": {}, "votre": {}, "vos": {}, "aux": {}, "ses": {},
	// Customs-domain terms present in nearly every question
	"droit": {}, "droits": {}, "douane": {}, "douanes": {}, "douanier": {}, "douanière": {},
	"tarif": {}, "tarifs": {}, "tarifaire": {}, "taux": {}, "taxe": {}, "taxes": {},
	"code": {}, "codes": {}, "importation": {}, "exportation": {}, "importer": {},
	"exporter": {}, "produit": {}, "produits": {}, "marchandise": {}, "marchandises": {},
	// Arabic function and domain words
	"هل": {}, "ما": {}, "ماذا": {}, "كيف": {}, "كم": {}, "هذا": {}, "هذه": {},
	"على": {}, "من": {}, "في": {}, "جمارك": {}, "الجمارك": {}, "رسوم": {}, "الرسوم": {},
	"تعريفة": {}, "التعريفة": {}, "سلعة": {}, "بضاعة": {},
}

// countryRule maps an explicit country mention to its ISO code.
type countryRule struct {
	pattern string
	iso     string
}

var countryRules = []countryRule{
	{"maroc", "MA"}, {"المغرب", "MA"},
	{"france", "FR"}, {"فرنسا", "FR"},
	{"algérie", "DZ"}, {"algerie", "DZ"}, {"الجزائر", "DZ"},
	{"tunisie", "TN"}, {"تونس", "TN"},
	{"espagne", "ES"}, {"إسبانيا", "ES"},
	{"chine", "CN"}, {"الصين", "CN"},
	{"turquie", "TR"}, {"تركيا", "TR"},
	{"égypte", "EG"}, {"egypte", "EG"}, {"مصر", "EG"},
	{"émirats", "AE"}, {"emirats", "AE"}, {"الإمارات", "AE"},
}

// codePattern matches digit groups resembling tariff codes: 2-10
// digits, optionally separated by dots, spaces or dashes.
var codePattern = regexp.MustCompile(`\d{2,4}(?:[.\s-]\d{2,4}){0,4}|\d{4,10}`)

// tokenPattern keeps runs of Latin (accented included) and Arabic
// letters for keyword extraction.
var tokenPattern = regexp.MustCompile(`[a-zà-öø-ÿœ\x{0600}-\x{06FF}][a-zà-öø-ÿœ\x{0600}-\x{06FF}'-]*`)

// productPatterns are the product-noun families watched for in
// conversation history so short follow-ups keep their subject.
var productPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(smartphones?|téléphones?|telephones?|ordinateurs?|tablettes?|téléviseurs?|televiseurs?|imprimantes?)\b`),
	regexp.MustCompile(`(?i)\b(voitures?|véhicules?|vehicules?|motos?|camions?|tracteurs?|pneus?)\b`),
	regexp.MustCompile(`(?i)\b(textiles?|vêtements?|vetements?|chaussures?|tissus?|cuirs?)\b`),
	regexp.MustCompile(`(?i)\b(riz|blé|ble|sucre|huiles?|café|cafe|thé|the|lait|fromages?|viandes?|poissons?|céréales?|cereales?)\b`),
	regexp.MustCompile(`(?i)\b(médicaments?|medicaments?|cosmétiques?|cosmetiques?|produits? chimiques?|engrais|peintures?)\b`),
	regexp.MustCompile(`(?i)\b(acier|aluminium|cuivre|bois|ciment|verre|plastiques?|papiers?)\b`),
	regexp.MustCompile(`(هاتف|حاسوب|سيارة|دواء|قمح|سكر|زيت|نسيج|ملابس|حديد|خشب)`),
}
