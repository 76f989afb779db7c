package anthropic

// chartAnalysisPrompt asks for a fixed line format so the first two lines
// can be parsed without a JSON round trip.
const chartAnalysisPrompt = `Analyze this chart. Respond in this EXACT format:

Line 1: UPTREND or DOWNTREND or NEUTRAL
Line 2: low or medium or high
Line 3: Reference: [price]
Line 4: Lower: [price]
Line 5: Upper: [price]

**Key Levels:**
* [level 1]
* [level 2]

**Pattern Analysis:**
* [pattern]
* [indicator]

**Risk Assessment:**
* [probability]
* [ratio]

Write only the words for lines 1 and 2, without the "Line N:" label.
End with: Educational analysis only, not financial advice.`
