package gemini

const extractionPrompt = `
You read photographs of retail food and supplement packaging and transcribe what is printed on them.
The photo may show the front, back, side, ingredient list or nutrition label of one product.
Report only what you can read on THIS photo. Use null for anything not visible; do not guess.

Return a single JSON object with exactly these keys:
{
  "product_name": "<product name as printed on the package, or null>",
  "manufacturer": "<company after 製造者 / 製造元 / Manufacturer, or null>",
  "seller":       "<company after 販売者 / 販売元 / Distributor when different from the manufacturer, or null>",
  "volume":       "<net content such as \"100g\" or \"500ml\", or null>",
  "ingredients":  ["<ingredient>", "..."] or null,
  "nutrition": {
    "energy":  "<e.g. \"100kcal\"> or null",
    "protein": "<e.g. \"5.0g\"> or null",
    "fat":     "<e.g. \"3.0g\"> or null",
    "carbs":   "<e.g. \"15.0g\"> or null",
    "sugar":   "<e.g. \"10.0g\"> or null",
    "fiber":   "<e.g. \"2.0g\"> or null",
    "salt":    "<e.g. \"0.5g\"> or null"
  },
  "appeals":      ["<marketing claim such as 無添加, 国産, 低糖質, high protein>", "..."] or null,
  "category":     "<one of: Chocolate, Gummy, Cookie, Snack, Donut, Jelly, Noodle, Supplement, Beverage, Protein, Other> or null"
}

Category guide:
- Chocolate: chocolate and chocolate confectionery
- Gummy: gummies and soft candy
- Cookie: cookies, biscuits, baked sweets
- Snack: chips, crackers, rice crackers (せんべい)
- Donut: donuts
- Jelly: jelly, pudding, mousse
- Noodle: ramen, udon, soba and other noodles
- Supplement: supplements, vitamins, health foods
- Beverage: drinks and juices
- Protein: protein powders and protein bars
- Other: anything else

Keep ingredient and claim text in the language printed on the package.
Output JSON only, no commentary.
`
